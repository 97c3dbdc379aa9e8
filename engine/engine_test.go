package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tarcisiozf/dslot/engine/internal/bandreg"
	"github.com/tarcisiozf/dslot/slots"
)

const deviceID = "{4655F3A8-D531-11E5-9115-01A83A673161}"

func newTestEngine(t *testing.T, options ...ConfigOption) *Engine {
	t.Helper()
	e, err := NewEngine(options...)
	if err != nil {
		t.Fatalf("Error creating engine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Error starting engine: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("Error closing engine: %v", err)
		}
	})
	return e
}

func TestEngine_Standalone(t *testing.T) {
	e := newTestEngine(t)

	slot, err := e.CRC16Slot(deviceID)
	if err != nil {
		t.Fatalf("Error computing crc16 slot: %v", err)
	}
	if !slot.Equal(slots.Of(6391)) {
		t.Fatalf("Expected slot 6391, got %s", slot)
	}
	if shard := e.Shard(slot); shard != "redis 3" {
		t.Fatalf("Expected shard redis 3, got %s", shard)
	}

	slot, err = e.SHA256Slot(deviceID)
	if err != nil {
		t.Fatalf("Error computing sha256 slot: %v", err)
	}
	if !slot.Equal(slots.Of(83)) {
		t.Fatalf("Expected slot 83, got %s", slot)
	}

	loc, err := e.Locate("   ")
	if err != nil {
		t.Fatalf("Error locating blank id: %v", err)
	}
	if !loc.Slot.IsNone() || loc.Shard != slots.ErrorShard {
		t.Fatalf("Expected missing slot on error shard, got %+v", loc)
	}

	if _, err := e.Assign(slots.CRC16, "x", -5); !errors.Is(err, slots.ErrInvalidSlotCount) {
		t.Fatalf("Expected invalid slot count for negative n, got %v", err)
	}
	if _, err := e.AssignBatch(context.Background(), slots.SHA256, -1, []string{"x"}); !IsInputError(err) {
		t.Fatalf("Expected input error for negative batch slot count, got %v", err)
	}
	if _, err := e.Assign(slots.Algorithm{}, "x", 10); !IsInputError(err) {
		t.Fatalf("Expected input error for zero algorithm, got %v", err)
	}

	if _, err := e.IdentifiersInRange(slots.CRC16, 0, slots.FullRange()); !errors.Is(err, ErrPersistenceDisable) {
		t.Fatalf("Expected persistence disabled error, got %v", err)
	}
}

func TestEngine_AssignBatch(t *testing.T) {
	e := newTestEngine(t,
		WithPersistence(true),
		WithDirPath(t.TempDir()),
		WithChunkSize(2),
		WithConcurrency(2),
	)

	ids := []string{deviceID, "{DC186E50-CECD-11EE-AFAE-7787E87EF42F}", "", "foo", "bar"}
	result, err := e.AssignBatch(context.Background(), slots.CRC16, 0, ids)
	if err != nil {
		t.Fatalf("Error assigning batch: %v", err)
	}
	if result.Slots != slots.RedisSlots || len(result.Assignments) != len(ids) {
		t.Fatalf("Unexpected batch result: %d slots, %d assignments", result.Slots, len(result.Assignments))
	}
	for i, id := range ids {
		want, _ := slots.CRC16Slot(id, slots.RedisSlots)
		if got := result.Assignments[i]; got.ID != id || !got.Slot.Equal(want) {
			t.Fatalf("Expected %s -> %s at %d, got %+v", id, want, i, got)
		}
	}
	if result.Saved != 4 || result.Summary.Missing != 1 {
		t.Fatalf("Expected 4 saved and 1 missing, got %d saved and %d missing", result.Saved, result.Summary.Missing)
	}

	records, err := e.IdentifiersInRange(slots.CRC16, 0, slots.SlotRange{6000, 7000})
	if err != nil {
		t.Fatalf("Error listing range: %v", err)
	}
	if len(records) != 1 || records[0].ID != deviceID || records[0].Shard != "redis 3" {
		t.Fatalf("Expected only %s in redis 3, got %+v", deviceID, records)
	}

	record, err := e.Lookup(slots.CRC16, 0, "foo")
	if err != nil {
		t.Fatalf("Error looking up foo: %v", err)
	}
	if record.Slot != 12182 || record.Shard != "redis 5" {
		t.Fatalf("Unexpected record for foo: %+v", record)
	}

	fleet, err := e.AssignBatch(context.Background(), slots.SHA256, 0, []string{deviceID})
	if err != nil {
		t.Fatalf("Error assigning fleet batch: %v", err)
	}
	if !fleet.Assignments[0].Slot.Equal(slots.Of(83)) || fleet.Summary.Slots != slots.FleetSlots {
		t.Fatalf("Unexpected fleet result: %+v", fleet.Assignments)
	}
	records, err = e.IdentifiersInRange(slots.SHA256, 0, slots.SlotRange{83, 83})
	if err != nil {
		t.Fatalf("Error listing fleet range: %v", err)
	}
	if len(records) != 1 || records[0].Shard != "" {
		t.Fatalf("Expected one fleet record without shard, got %+v", records)
	}

	if err := e.Forget(slots.CRC16, 0, "foo"); err != nil {
		t.Fatalf("Error forgetting foo: %v", err)
	}
	if _, err := e.Lookup(slots.CRC16, 0, "foo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected foo to be gone, got %v", err)
	}
	if err := e.Forget(slots.CRC16, 0, "foo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected not found forgetting foo twice, got %v", err)
	}
	if err := e.Forget(slots.CRC16, -1, deviceID); !errors.Is(err, slots.ErrInvalidSlotCount) {
		t.Fatalf("Expected invalid slot count, got %v", err)
	}
}

func TestEngine_Bands(t *testing.T) {
	e := newTestEngine(t)

	three, err := slots.EvenBands(slots.RedisSlots, "a", "b", "c")
	if err != nil {
		t.Fatalf("Error building bands: %v", err)
	}
	if err := e.PublishBands(three); err != nil {
		t.Fatalf("Error publishing bands: %v", err)
	}
	if shard := e.Shard(slots.Of(16383)); shard != "c" {
		t.Fatalf("Expected shard c, got %s", shard)
	}

	small, err := slots.EvenBands(10, "x")
	if err != nil {
		t.Fatalf("Error building bands: %v", err)
	}
	if err := e.PublishBands(small); !errors.Is(err, slots.ErrInvalidBands) {
		t.Fatalf("Expected invalid bands error, got %v", err)
	}
	if e.applyBands(&bandreg.Update{Table: small, Version: 3}) {
		t.Fatalf("Expected table for a different slot space to be ignored")
	}
	if !e.Bands().Equal(three) {
		t.Fatalf("Expected bands to stay unchanged")
	}

	info := e.Info()
	if len(info.Bands) != 3 || len(info.Algorithms) != 3 || info.Persistence || info.Zookeeper {
		t.Fatalf("Unexpected info: %+v", info)
	}
}

func TestEngine_Config(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bands.yaml")
	content := "slots: 16384\nbands:\n  - upper: 8191\n    name: left\n  - upper: 16383\n    name: right\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Error writing bands file: %v", err)
	}

	e, err := NewEngine(WithBandsFile(path))
	if err != nil {
		t.Fatalf("Error creating engine: %v", err)
	}
	if names := e.Bands().Names(); len(names) != 2 || names[1] != "right" {
		t.Fatalf("Unexpected bands: %v", names)
	}

	evenPath := filepath.Join(t.TempDir(), "even.yaml")
	if err := os.WriteFile(evenPath, []byte("shards: [a, b, c, d]\n"), 0o644); err != nil {
		t.Fatalf("Error writing bands file: %v", err)
	}
	table, err := LoadBandsFile(evenPath)
	if err != nil {
		t.Fatalf("Error loading even bands: %v", err)
	}
	if table.Size() != 4 || table.Slots() != slots.RedisSlots {
		t.Fatalf("Unexpected even table: %d bands over %d slots", table.Size(), table.Slots())
	}

	invalid := [][]ConfigOption{
		{WithHttpPort("http")},
		{WithRedisSlots(0)},
		{WithFleetSlots(-1)},
		{WithZookeeper("no-port")},
		{WithZNodeBasePath("/other")},
		{WithChunkSize(0)},
		{WithLogger(nil)},
		{WithPublishBands()},
		{WithRedisSlots(100), WithBands(slots.DefaultRedisBands())},
		{WithBandsFile(filepath.Join(t.TempDir(), "missing.yaml"))},
	}
	for i, options := range invalid {
		if _, err := NewEngine(options...); err == nil {
			t.Fatalf("Expected error for option set %d", i)
		}
	}

	custom, err := NewEngine(WithRedisSlots(60))
	if err != nil {
		t.Fatalf("Error creating engine with custom slots: %v", err)
	}
	if custom.Bands().Size() != 6 || custom.Bands().Slots() != 60 {
		t.Fatalf("Expected six even bands over 60 slots, got %v", custom.Bands().Ranges())
	}
}
