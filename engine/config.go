package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tarcisiozf/dslot/engine/internal/conf"
	"github.com/tarcisiozf/dslot/internal/batch"
	"github.com/tarcisiozf/dslot/internal/net"
	"github.com/tarcisiozf/dslot/slots"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type ConfigOption func(conf.Config) (conf.Config, error)

var defaultConfig = conf.Config{
	DirPath:        "./db",
	RedisSlots:     slots.RedisSlots,
	FleetSlots:     slots.FleetSlots,
	Zookeeper:      []string{},
	ZNodeBasePath:  "/dslot",
	SessionTimeout: 10 * time.Second,
	ChunkSize:      batch.DefaultChunkSize,
}

// BandsFile is the YAML layout accepted by WithBandsFile.
type BandsFile struct {
	Slots int          `yaml:"slots"`
	Bands []slots.Band `yaml:"bands"`
	// Shards builds evenly sized bands when Bands is empty.
	Shards []string `yaml:"shards"`
}

func WithDirPath(dirPath string) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		config.DirPath = strings.TrimSuffix(dirPath, "/")
		return config, nil
	}
}

func WithHttpPort(port string) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		if !net.IsValidPort(port) {
			return config, fmt.Errorf("invalid port: %s", port)
		}
		config.HttpPort = port
		return config, nil
	}
}

func WithRedisSlots(n int) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		if n <= 0 {
			return config, slots.ErrInvalidSlotCount
		}
		config.RedisSlots = n
		return config, nil
	}
}

func WithFleetSlots(n int) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		if n <= 0 {
			return config, slots.ErrInvalidSlotCount
		}
		config.FleetSlots = n
		return config, nil
	}
}

func WithBands(table *slots.BandTable) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		if table == nil {
			return config, errors.New("band table cannot be nil")
		}
		config.Bands = table
		return config, nil
	}
}

func WithBandsFile(path string) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		table, err := LoadBandsFile(path)
		if err != nil {
			return config, err
		}
		config.Bands = table
		return config, nil
	}
}

func WithZookeeper(servers ...string) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		if len(servers) == 0 {
			return config, errors.New("zookeeper address is required")
		}
		for _, s := range servers {
			if !net.IsValidHostPort(s) {
				return config, fmt.Errorf("invalid zookeeper address: %s", s)
			}
		}
		config.Zookeeper = servers
		return config, nil
	}
}

func WithZNodeBasePath(path string) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		if !strings.HasPrefix(path, "/dslot") {
			return config, fmt.Errorf("invalid zk base path: %s", path)
		}
		config.ZNodeBasePath = strings.TrimSuffix(path, "/")
		return config, nil
	}
}

// WithPublishBands makes this instance the source of the shared band table
// instead of a follower of it.
func WithPublishBands() ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		config.PublishBands = true
		return config, nil
	}
}

func WithPersistence(enabled bool) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		config.Persist = enabled
		return config, nil
	}
}

func WithChunkSize(size int) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		if size <= 0 {
			return config, errors.New("chunk size must be greater than 0")
		}
		config.ChunkSize = size
		return config, nil
	}
}

func WithConcurrency(concurrency int) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		if concurrency <= 0 {
			return config, errors.New("concurrency must be greater than 0")
		}
		config.Concurrency = concurrency
		return config, nil
	}
}

func WithLogger(logger *zap.Logger) ConfigOption {
	return func(config conf.Config) (conf.Config, error) {
		if logger == nil {
			return config, errors.New("logger cannot be nil")
		}
		config.Logger = logger
		return config, nil
	}
}

func LoadBandsFile(path string) (*slots.BandTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bands file: %w", err)
	}
	var file BandsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse bands file %s: %w", path, err)
	}
	if file.Slots == 0 {
		file.Slots = slots.RedisSlots
	}
	if len(file.Bands) == 0 {
		return slots.EvenBands(file.Slots, file.Shards...)
	}
	return slots.NewBandTable(file.Slots, file.Bands...)
}

func validateConfig(config conf.Config) (conf.Config, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	if config.Persist && config.DirPath == "" {
		return config, errors.New("dirPath is required when persistence is enabled")
	}

	if config.Bands == nil {
		if config.RedisSlots == slots.RedisSlots {
			config.Bands = slots.DefaultRedisBands()
		} else {
			table, err := slots.EvenBands(config.RedisSlots, "redis 1", "redis 2", "redis 3", "redis 4", "redis 5", "redis 6")
			if err != nil {
				return config, fmt.Errorf("no bands for %d slots: %w", config.RedisSlots, err)
			}
			config.Bands = table
		}
	}

	if config.Bands.Slots() != config.RedisSlots {
		return config, fmt.Errorf("band table covers %d slots, expected %d", config.Bands.Slots(), config.RedisSlots)
	}

	if config.PublishBands && !config.UseZookeeper() {
		return config, errors.New("publishing bands requires zookeeper")
	}

	return config, nil
}
