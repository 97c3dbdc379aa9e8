package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarcisiozf/dslot/engine/internal/bandreg"
	"github.com/tarcisiozf/dslot/engine/internal/conf"
	"github.com/tarcisiozf/dslot/engine/internal/store"
	"github.com/tarcisiozf/dslot/internal/batch"
	"github.com/tarcisiozf/dslot/internal/faults"
	"github.com/tarcisiozf/dslot/internal/flows"
	"github.com/tarcisiozf/dslot/internal/stats"
	"github.com/tarcisiozf/dslot/slots"
	"go.uber.org/zap"
)

type Engine struct {
	config    conf.Config
	logger    *zap.Logger
	bands     atomic.Pointer[slots.BandTable]
	processor *batch.Processor
	store     *store.Manager
	registry  *bandreg.Registry
	cancel    context.CancelFunc
	watchers  sync.WaitGroup
	started   atomic.Bool
}

// Location is where an identifier lives in the Redis cluster.
type Location struct {
	ID    string     `json:"id"`
	Slot  slots.Slot `json:"slot"`
	Shard string     `json:"shard"`
}

type BatchResult struct {
	Algorithm   string             `json:"algorithm"`
	Slots       int                `json:"slots"`
	Assignments []slots.Assignment `json:"assignments"`
	Summary     stats.Summary      `json:"summary"`
	Saved       int                `json:"saved"`
}

type Info struct {
	RedisSlots  int          `json:"redis_slots"`
	FleetSlots  int          `json:"fleet_slots"`
	Algorithms  []string     `json:"algorithms"`
	Bands       []slots.Band `json:"bands"`
	Persistence bool         `json:"persistence"`
	Zookeeper   bool         `json:"zookeeper"`
}

func NewEngine(options ...ConfigOption) (e *Engine, err error) {
	config := defaultConfig
	for _, option := range options {
		config, err = option(config)
		if err != nil {
			return nil, fmt.Errorf("failed to apply config option: %w", err)
		}
	}

	config, err = validateConfig(config)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e = &Engine{
		config: config,
		logger: config.Logger,
		processor: batch.NewProcessor(
			batch.WithChunkSize(config.ChunkSize),
			batch.WithConcurrency(config.Concurrency),
			batch.WithLogger(config.Logger),
		),
	}
	e.bands.Store(config.Bands)
	return e, nil
}

func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}
	return flows.Pipeline(
		flows.NewStep("open store", e.setupStore),
		flows.NewStep("connect zookeeper", e.setupRegistry),
		flows.NewStep("sync bands", e.syncBands(ctx)),
	)
}

func (e *Engine) Config() conf.Config {
	return e.config
}

func (e *Engine) setupStore() error {
	if !e.config.Persist {
		return nil
	}
	path := e.config.DirPath + "/assignments"
	kvs, err := store.NewRoseDbKeyValueStore(path)
	if err != nil {
		return fmt.Errorf("failed to create kv store: %w", err)
	}
	e.store = store.NewManager(kvs)
	e.logger.Info("assignment store opened", zap.String("path", path))
	return nil
}

func (e *Engine) setupRegistry() error {
	if !e.config.UseZookeeper() {
		return nil
	}
	registry, err := bandreg.Connect(e.config.Zookeeper, e.config.ZNodeBasePath, e.config.SessionTimeout, e.logger)
	if err != nil {
		return err
	}
	e.registry = registry
	return nil
}

func (e *Engine) syncBands(ctx context.Context) func() error {
	return func() error {
		if e.registry == nil {
			return nil
		}

		version := int32(-1)
		if e.config.PublishBands {
			if err := e.registry.Publish(e.Bands()); err != nil {
				return err
			}
		} else {
			update, err := e.registry.Load()
			switch {
			case errors.Is(err, bandreg.ErrBandsNotFound):
				e.logger.Warn("no shared band table yet, using local table", zap.String("path", e.registry.Path()))
			case err != nil:
				return err
			default:
				e.applyBands(update)
				version = update.Version
			}
		}

		watchCtx, cancel := context.WithCancel(ctx)
		e.cancel = cancel
		updates := e.registry.Watch(watchCtx, version)
		e.watchers.Add(1)
		go func() {
			defer e.watchers.Done()
			for update := range updates {
				e.applyBands(update)
			}
		}()
		return nil
	}
}

// applyBands swaps the band table unless it covers a different slot space.
func (e *Engine) applyBands(update *bandreg.Update) bool {
	if update.Table.Slots() != e.config.RedisSlots {
		e.logger.Error("ignoring band table for a different slot space",
			zap.Int32("version", update.Version),
			zap.Int("slots", update.Table.Slots()),
			zap.Int("expected", e.config.RedisSlots))
		return false
	}
	e.bands.Store(update.Table)
	bandTableUpdatesTotal.Inc()
	e.logger.Info("band table updated", zap.Int32("version", update.Version), zap.Strings("shards", update.Table.Names()))
	return true
}

// slotCount resolves n = 0 to the configured slot count of alg.
func (e *Engine) slotCount(alg slots.Algorithm, n int) (int, error) {
	switch {
	case n > 0:
		return n, nil
	case n < 0:
		return 0, slots.ErrInvalidSlotCount
	case alg.Equal(slots.CRC16):
		return e.config.RedisSlots, nil
	default:
		return e.config.FleetSlots, nil
	}
}

func ParseAlgorithm(name string) (slots.Algorithm, error) {
	alg, err := slots.ParseAlgorithm(name)
	if err != nil {
		return alg, ErrAlgorithm{Name: name}
	}
	return alg, nil
}

func (e *Engine) CRC16Slot(id string) (slots.Slot, error) {
	return e.Assign(slots.CRC16, id, 0)
}

func (e *Engine) SHA256Slot(id string) (slots.Slot, error) {
	return e.Assign(slots.SHA256, id, 0)
}

// Assign computes the slot of id; n = 0 selects the configured slot count.
func (e *Engine) Assign(alg slots.Algorithm, id string, n int) (slots.Slot, error) {
	if !alg.IsValid() {
		return slots.None(), ErrAlgorithm{Name: alg.String()}
	}
	n, err := e.slotCount(alg, n)
	if err != nil {
		return slots.None(), err
	}
	slot, err := alg.Assign(id, n)
	if err != nil {
		return slot, err
	}
	observeSlot(alg.String(), slot.IsNone())
	return slot, nil
}

func (e *Engine) Shard(slot slots.Slot) string {
	shard := e.Bands().ShardFor(slot)
	observeShard(shard)
	return shard
}

// ShardForValue resolves a textual slot number, as read from a request or a
// spreadsheet cell.
func (e *Engine) ShardForValue(value string) string {
	shard := e.Bands().ShardForValue(value)
	observeShard(shard)
	return shard
}

func (e *Engine) Locate(id string) (Location, error) {
	slot, err := e.CRC16Slot(id)
	if err != nil {
		return Location{}, err
	}
	return Location{ID: id, Slot: slot, Shard: e.Shard(slot)}, nil
}

// AssignBatch assigns every identifier and summarizes the spread. With
// persistence enabled the assignments are also stored.
func (e *Engine) AssignBatch(ctx context.Context, alg slots.Algorithm, n int, ids []string) (*BatchResult, error) {
	if !alg.IsValid() {
		return nil, ErrAlgorithm{Name: alg.String()}
	}
	n, err := e.slotCount(alg, n)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	assignments, err := e.processor.Run(ctx, alg, n, ids)
	if err != nil {
		return nil, err
	}
	batchDurationSeconds.WithLabelValues(alg.String()).Observe(time.Since(start).Seconds())

	result := &BatchResult{
		Algorithm:   alg.String(),
		Slots:       n,
		Assignments: assignments,
		Summary:     stats.Distribution(assignments, alg, n),
	}
	for _, a := range assignments {
		observeSlot(alg.String(), a.Slot.IsNone())
	}

	if e.store != nil {
		result.Saved, err = e.store.Save(alg, n, assignments, e.shardFunc(alg, n))
		if err != nil {
			return nil, fmt.Errorf("failed to save assignments: %w", err)
		}
	}
	return result, nil
}

func (e *Engine) shardFunc(alg slots.Algorithm, n int) func(slots.Slot) string {
	table := e.Bands()
	if !alg.Equal(slots.CRC16) || n != table.Slots() {
		return nil
	}
	return table.ShardFor
}

// IdentifiersInRange lists the stored identifiers whose slot falls in r.
func (e *Engine) IdentifiersInRange(alg slots.Algorithm, n int, r slots.SlotRange) ([]store.Record, error) {
	if e.store == nil {
		if e.config.Persist {
			return nil, ErrNotStarted
		}
		return nil, ErrPersistenceDisable
	}
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid slot range %s", r)
	}
	n, err := e.slotCount(alg, n)
	if err != nil {
		return nil, err
	}
	return e.store.InRange(alg, n, r)
}

func (e *Engine) Lookup(alg slots.Algorithm, n int, id string) (*store.Record, error) {
	if e.store == nil {
		return nil, ErrPersistenceDisable
	}
	n, err := e.slotCount(alg, n)
	if err != nil {
		return nil, err
	}
	return e.store.Lookup(alg, n, id)
}

// Forget drops the stored assignment of id.
func (e *Engine) Forget(alg slots.Algorithm, n int, id string) error {
	if e.store == nil {
		return ErrPersistenceDisable
	}
	n, err := e.slotCount(alg, n)
	if err != nil {
		return err
	}
	if err := e.store.Forget(alg, n, id); err != nil {
		return err
	}
	e.logger.Debug("assignment forgotten", zap.String("algorithm", alg.String()), zap.String("id", id))
	return nil
}

func (e *Engine) Bands() *slots.BandTable {
	return e.bands.Load()
}

// PublishBands replaces the band table locally and, when connected, in
// zookeeper.
func (e *Engine) PublishBands(table *slots.BandTable) error {
	if table.Slots() != e.config.RedisSlots {
		return fmt.Errorf("%w: table covers %d slots, expected %d", slots.ErrInvalidBands, table.Slots(), e.config.RedisSlots)
	}
	if e.registry != nil {
		if err := e.registry.Publish(table); err != nil {
			return err
		}
	}
	e.bands.Store(table)
	return nil
}

func (e *Engine) Info() Info {
	info := Info{
		RedisSlots:  e.config.RedisSlots,
		FleetSlots:  e.config.FleetSlots,
		Bands:       e.Bands().Bands(),
		Persistence: e.config.Persist,
		Zookeeper:   e.config.UseZookeeper(),
	}
	for _, alg := range slots.Algorithms() {
		info.Algorithms = append(info.Algorithms, alg.String())
	}
	return info
}

func (e *Engine) Close() error {
	el := &faults.ErrList{}

	if e.cancel != nil {
		e.cancel()
	}
	if e.registry != nil {
		e.registry.Close()
	}
	e.watchers.Wait()

	if e.store != nil {
		if err := e.store.Close(); err != nil {
			el.Add(fmt.Errorf("failed to close store: %w", err))
		}
	}

	return el.Err()
}
