package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tarcisiozf/dslot/slots"
)

// key layout: algorithm(1) | slot count(4) | slot(4) | identifier
const keyHeaderSize = 9

type Record struct {
	ID         string    `json:"id"`
	Algorithm  string    `json:"algorithm"`
	Slots      int       `json:"slots"`
	Slot       int       `json:"slot"`
	Shard      string    `json:"shard,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Manager persists slot assignments so identifiers can be listed per slot.
type Manager struct {
	kv  KeyValueStore
	now func() time.Time
}

func NewManager(kv KeyValueStore) *Manager {
	return &Manager{
		kv:  kv,
		now: time.Now,
	}
}

// slotSpacePrefix is the key prefix shared by every record of alg with n
// slots. Keys under it are ordered by slot.
func slotSpacePrefix(alg slots.Algorithm, n int) []byte {
	prefix := make([]byte, 5, keyHeaderSize)
	prefix[0] = alg.Code()
	binary.BigEndian.PutUint32(prefix[1:5], uint32(n))
	return prefix
}

func assignmentKey(alg slots.Algorithm, n, slot int, id string) []byte {
	key := append(slotSpacePrefix(alg, n), make([]byte, 4)...)
	binary.BigEndian.PutUint32(key[5:9], uint32(slot))
	return append(key, id...)
}

func decodeKey(key []byte) (alg slots.Algorithm, n, slot int, id string, err error) {
	if len(key) <= keyHeaderSize {
		return alg, 0, 0, "", fmt.Errorf("invalid assignment key of %d bytes", len(key))
	}
	alg, err = slots.AlgorithmByCode(key[0])
	if err != nil {
		return alg, 0, 0, "", err
	}
	n = int(binary.BigEndian.Uint32(key[1:5]))
	slot = int(binary.BigEndian.Uint32(key[5:9]))
	return alg, n, slot, string(key[keyHeaderSize:]), nil
}

// Save stores the assigned entries; missing slots are skipped. shard may be
// nil when the slot space has no band table.
func (m *Manager) Save(alg slots.Algorithm, n int, assignments []slots.Assignment, shard func(slots.Slot) string) (int, error) {
	saved := 0
	now := m.now().UTC()
	for _, a := range assignments {
		v, ok := a.Slot.Value()
		if !ok {
			continue
		}
		record := Record{ID: a.ID, Algorithm: alg.String(), Slots: n, Slot: v, AssignedAt: now}
		if shard != nil {
			record.Shard = shard(a.Slot)
		}
		value, err := json.Marshal(record)
		if err != nil {
			return saved, fmt.Errorf("failed to encode record for %q: %w", a.ID, err)
		}
		if err := m.kv.Set(assignmentKey(alg, n, v, a.ID), value); err != nil {
			return saved, fmt.Errorf("failed to store record for %q: %w", a.ID, err)
		}
		saved++
	}
	return saved, nil
}

// Lookup returns the stored record of id, if it was saved before.
func (m *Manager) Lookup(alg slots.Algorithm, n int, id string) (*Record, error) {
	slot, err := alg.Assign(id, n)
	if err != nil {
		return nil, err
	}
	v, ok := slot.Value()
	if !ok {
		return nil, ErrKeyNotFound
	}
	value, err := m.kv.Get(assignmentKey(alg, n, v, id))
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record for %q: %w", id, err)
	}
	return &record, nil
}

// InRange lists stored records of alg with n slots whose slot falls in r,
// ordered by slot.
func (m *Manager) InRange(alg slots.Algorithm, n int, r slots.SlotRange) ([]Record, error) {
	var records []Record
	for entry, err := range m.kv.Scan(slotSpacePrefix(alg, n)) {
		if err != nil {
			return nil, fmt.Errorf("failed to iterate over entries: %w", err)
		}
		keyAlg, _, slot, id, err := decodeKey(entry.Key)
		if err != nil {
			return nil, err
		}
		if !keyAlg.Equal(alg) {
			return nil, fmt.Errorf("record %q stored as %s under %s", id, keyAlg, alg)
		}
		if slot > r.End() {
			break
		}
		if slot < r.Start() {
			continue
		}
		var record Record
		if err := json.Unmarshal(entry.Value, &record); err != nil {
			return nil, fmt.Errorf("failed to decode record at slot %d: %w", slot, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Forget removes the stored record of id.
func (m *Manager) Forget(alg slots.Algorithm, n int, id string) error {
	slot, err := alg.Assign(id, n)
	if err != nil {
		return err
	}
	v, ok := slot.Value()
	if !ok {
		return ErrKeyNotFound
	}
	key := assignmentKey(alg, n, v, id)
	if _, err := m.kv.Get(key); err != nil {
		return err
	}
	return m.kv.Delete(key)
}

func (m *Manager) Close() error {
	return m.kv.Close()
}
