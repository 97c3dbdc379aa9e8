package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tarcisiozf/dslot/slots"
)

func testStores(t *testing.T) map[string]KeyValueStore {
	rose, err := NewRoseDbKeyValueStore(t.TempDir())
	require.NoError(t, err)
	return map[string]KeyValueStore{
		"memory": NewInMemoryKeyValueStore(),
		"rosedb": rose,
	}
}

func TestManager(t *testing.T) {
	ids := []string{
		"{4655F3A8-D531-11E5-9115-01A83A673161}",
		"{DC186E50-CECD-11EE-AFAE-7787E87EF42F}",
		"{A1B2C3D4-E5F6-11EE-1234-567890ABCDEF}",
		"",
	}

	for name, kv := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			m := NewManager(kv)
			defer m.Close()
			fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			m.now = func() time.Time { return fixed }

			assignments, err := batchAssign(slots.CRC16, slots.RedisSlots, ids)
			require.NoError(t, err)

			bands := slots.DefaultRedisBands()
			saved, err := m.Save(slots.CRC16, slots.RedisSlots, assignments, bands.ShardFor)
			require.NoError(t, err)
			require.Equal(t, 3, saved)

			record, err := m.Lookup(slots.CRC16, slots.RedisSlots, ids[0])
			require.NoError(t, err)
			require.Equal(t, Record{
				ID:         ids[0],
				Algorithm:  "crc16",
				Slots:      slots.RedisSlots,
				Slot:       6391,
				Shard:      "redis 3",
				AssignedAt: fixed,
			}, *record)

			all, err := m.InRange(slots.CRC16, slots.RedisSlots, slots.FullRange())
			require.NoError(t, err)
			require.Len(t, all, 3)
			for i := 1; i < len(all); i++ {
				require.LessOrEqual(t, all[i-1].Slot, all[i].Slot)
			}

			band3, err := m.InRange(slots.CRC16, slots.RedisSlots, slots.SlotRange{5461, 8191})
			require.NoError(t, err)
			require.Len(t, band3, 1)
			require.Equal(t, ids[0], band3[0].ID)

			other, err := m.InRange(slots.SHA256, 100, slots.SlotRange{1, 100})
			require.NoError(t, err)
			require.Empty(t, other)

			small, err := batchAssign(slots.CRC16, 100, ids)
			require.NoError(t, err)
			saved, err = m.Save(slots.CRC16, 100, small, nil)
			require.NoError(t, err)
			require.Equal(t, 3, saved)
			smallRange, err := m.InRange(slots.CRC16, 100, slots.SlotRange{0, 99})
			require.NoError(t, err)
			require.Len(t, smallRange, 3)
			for _, record := range smallRange {
				require.Equal(t, 100, record.Slots)
			}
			all, err = m.InRange(slots.CRC16, slots.RedisSlots, slots.FullRange())
			require.NoError(t, err)
			require.Len(t, all, 3)

			require.NoError(t, m.Forget(slots.CRC16, slots.RedisSlots, ids[0]))
			_, err = m.Lookup(slots.CRC16, slots.RedisSlots, ids[0])
			require.ErrorIs(t, err, ErrKeyNotFound)
			require.ErrorIs(t, m.Forget(slots.CRC16, slots.RedisSlots, ids[0]), ErrKeyNotFound)
			require.ErrorIs(t, m.Forget(slots.CRC16, slots.RedisSlots, ""), ErrKeyNotFound)

			_, err = m.Lookup(slots.CRC16, slots.RedisSlots, "")
			require.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func batchAssign(alg slots.Algorithm, n int, ids []string) ([]slots.Assignment, error) {
	assignments := make([]slots.Assignment, len(ids))
	for i, id := range ids {
		slot, err := alg.Assign(id, n)
		if err != nil {
			return nil, err
		}
		assignments[i] = slots.Assignment{ID: id, Slot: slot}
	}
	return assignments, nil
}

func TestAssignmentKey(t *testing.T) {
	key := assignmentKey(slots.SHA256, 100, 42, "device")
	require.True(t, bytes.HasPrefix(key, slotSpacePrefix(slots.SHA256, 100)))
	alg, n, slot, id, err := decodeKey(key)
	require.NoError(t, err)
	require.True(t, alg.Equal(slots.SHA256))
	require.Equal(t, 100, n)
	require.Equal(t, 42, slot)
	require.Equal(t, "device", id)

	require.Less(t, string(assignmentKey(slots.CRC16, 16384, 255, "b")), string(assignmentKey(slots.CRC16, 16384, 256, "a")))

	_, _, _, _, err = decodeKey(key[:keyHeaderSize])
	require.Error(t, err)

	key[0] = 0xff
	_, _, _, _, err = decodeKey(key)
	require.Error(t, err)
}
