package bandreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/tarcisiozf/dslot/internal/retry"
	"github.com/tarcisiozf/dslot/slots"
	"go.uber.org/zap"
)

var ErrBandsNotFound = errors.New("band table not published")

const bandsNode = "bands"

// Conn is the part of *zk.Conn the registry needs.
type Conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Set(path string, data []byte, version int32) (*zk.Stat, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Close()
}

type Update struct {
	Table   *slots.BandTable
	Version int32
}

type bandData struct {
	Slots int          `json:"slots"`
	Bands []slots.Band `json:"bands"`
}

// Registry shares the band table between instances through a znode.
type Registry struct {
	conn         Conn
	basePath     string
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewRegistry(conn Conn, basePath string, logger *zap.Logger) (*Registry, error) {
	if !strings.HasPrefix(basePath, "/") {
		return nil, fmt.Errorf("invalid zk base path: %s", basePath)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conn:         conn,
		basePath:     strings.TrimSuffix(basePath, "/"),
		pollInterval: time.Second,
		logger:       logger,
	}, nil
}

// Connect dials zookeeper and waits until a session is established.
func Connect(servers []string, basePath string, sessionTimeout time.Duration, logger *zap.Logger) (*Registry, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	err = retry.NewRetry(retry.WithTimeout(sessionTimeout)).Do(func() error {
		if conn.State() != zk.StateHasSession {
			return fmt.Errorf("zookeeper state %s", conn.State())
		}
		return nil
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish zookeeper session: %w", err)
	}
	return NewRegistry(conn, basePath, logger)
}

func (r *Registry) Path() string {
	return r.basePath + "/" + bandsNode
}

func (r *Registry) Publish(table *slots.BandTable) error {
	data, err := json.Marshal(bandData{Slots: table.Slots(), Bands: table.Bands()})
	if err != nil {
		return fmt.Errorf("failed to marshal band table: %w", err)
	}
	if err := r.ensurePathExists(r.basePath); err != nil {
		return err
	}

	path := r.Path()
	_, err = r.conn.Create(path, data, 0, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		_, err = r.conn.Set(path, data, -1)
	}
	if err != nil {
		return fmt.Errorf("failed to publish band table at %s: %w", path, err)
	}
	r.logger.Info("published band table", zap.String("path", path), zap.Int("bands", table.Size()))
	return nil
}

func (r *Registry) Load() (*Update, error) {
	data, stat, err := r.conn.Get(r.Path())
	if errors.Is(err, zk.ErrNoNode) {
		return nil, ErrBandsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get band table: %w", err)
	}
	table, err := decode(data)
	if err != nil {
		return nil, err
	}
	return &Update{Table: table, Version: stat.Version}, nil
}

// Watch polls the band table and emits every new valid version after
// lastVersion. The channel closes when ctx is done or the connection closes.
func (r *Registry) Watch(ctx context.Context, lastVersion int32) <-chan *Update {
	updates := make(chan *Update)

	go func() {
		defer close(updates)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.pollInterval):
			}

			data, stat, err := r.conn.Get(r.Path())
			if err != nil {
				if errors.Is(err, zk.ErrConnectionClosed) {
					r.logger.Info("band watcher: connection closed")
					return
				}
				if !errors.Is(err, zk.ErrNoNode) {
					r.logger.Error("band watcher: failed to get band table", zap.Error(err))
				}
				continue
			}
			if stat.Version == lastVersion {
				continue
			}
			lastVersion = stat.Version

			table, err := decode(data)
			if err != nil {
				r.logger.Error("band watcher: ignoring invalid band table", zap.Int32("version", stat.Version), zap.Error(err))
				continue
			}
			select {
			case updates <- &Update{Table: table, Version: stat.Version}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates
}

func (r *Registry) Close() {
	r.conn.Close()
}

func (r *Registry) ensurePathExists(path string) error {
	currentPath := ""
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		currentPath += "/" + part
		exists, _, err := r.conn.Exists(currentPath)
		if err != nil {
			return fmt.Errorf("failed to check existence of path %s: %w", currentPath, err)
		}
		if exists {
			continue
		}
		_, err = r.conn.Create(currentPath, []byte{}, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("failed to create path %s: %w", currentPath, err)
		}
	}
	return nil
}

func decode(data []byte) (*slots.BandTable, error) {
	var bd bandData
	if err := json.Unmarshal(data, &bd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal band table: %w", err)
	}
	return slots.NewBandTable(bd.Slots, bd.Bands...)
}
