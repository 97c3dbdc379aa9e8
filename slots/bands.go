package slots

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrorShard is returned by shard lookups that cannot be resolved.
const ErrorShard = "error"

var ErrInvalidBands = errors.New("invalid band table")

// Band maps every slot up to and including Upper to a named shard.
type Band struct {
	Upper int    `json:"upper" yaml:"upper"`
	Name  string `json:"name" yaml:"name"`
}

// BandTable is an ordered list of bands partitioning [0, n-1] without gaps
// or overlaps.
type BandTable struct {
	slots int
	bands []Band
}

func NewBandTable(n int, bands ...Band) (*BandTable, error) {
	if n <= 0 {
		return nil, ErrInvalidSlotCount
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: no bands", ErrInvalidBands)
	}
	prev := -1
	for i, b := range bands {
		if strings.TrimSpace(b.Name) == "" {
			return nil, fmt.Errorf("%w: band %d has no name", ErrInvalidBands, i)
		}
		if b.Upper <= prev {
			return nil, fmt.Errorf("%w: band %q upper bound %d does not follow %d", ErrInvalidBands, b.Name, b.Upper, prev)
		}
		prev = b.Upper
	}
	if prev != n-1 {
		return nil, fmt.Errorf("%w: last band ends at %d, want %d", ErrInvalidBands, prev, n-1)
	}
	return &BandTable{
		slots: n,
		bands: append([]Band(nil), bands...),
	}, nil
}

// EvenBands spreads n slots over the named shards using Partition.
func EvenBands(n int, names ...string) (*BandTable, error) {
	if n <= 0 {
		return nil, ErrInvalidSlotCount
	}
	ranges, err := SlotRange{0, n - 1}.Partition(len(names))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBands, err)
	}
	bands := make([]Band, len(ranges))
	for i, r := range ranges {
		bands[i] = Band{Upper: r.End(), Name: names[i]}
	}
	return NewBandTable(n, bands...)
}

// DefaultRedisBands is the six-node Redis Cluster layout.
func DefaultRedisBands() *BandTable {
	table, err := NewBandTable(RedisSlots,
		Band{Upper: 2730, Name: "redis 1"},
		Band{Upper: 5460, Name: "redis 2"},
		Band{Upper: 8191, Name: "redis 3"},
		Band{Upper: 10922, Name: "redis 4"},
		Band{Upper: 13652, Name: "redis 5"},
		Band{Upper: 16383, Name: "redis 6"},
	)
	if err != nil {
		panic(err)
	}
	return table
}

// ShardFor returns the shard owning slot, or ErrorShard.
func (t *BandTable) ShardFor(slot Slot) string {
	v, ok := slot.Value()
	if !ok || v < 0 || v >= t.slots {
		return ErrorShard
	}
	i := sort.Search(len(t.bands), func(i int) bool {
		return t.bands[i].Upper >= v
	})
	if i == len(t.bands) {
		return ErrorShard
	}
	return t.bands[i].Name
}

// ShardForValue is ShardFor on a textual slot such as a spreadsheet cell.
func (t *BandTable) ShardForValue(value string) string {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return ErrorShard
	}
	return t.ShardFor(Of(v))
}

func (t *BandTable) Slots() int {
	return t.slots
}

func (t *BandTable) Size() int {
	return len(t.bands)
}

func (t *BandTable) Bands() []Band {
	return append([]Band(nil), t.bands...)
}

func (t *BandTable) Names() []string {
	names := make([]string, len(t.bands))
	for i, b := range t.bands {
		names[i] = b.Name
	}
	return names
}

func (t *BandTable) Ranges() []SlotRange {
	ranges := make([]SlotRange, len(t.bands))
	start := 0
	for i, b := range t.bands {
		ranges[i] = SlotRange{start, b.Upper}
		start = b.Upper + 1
	}
	return ranges
}

func (t *BandTable) Equal(other *BandTable) bool {
	if other == nil || t.slots != other.slots || len(t.bands) != len(other.bands) {
		return false
	}
	for i := range t.bands {
		if t.bands[i] != other.bands[i] {
			return false
		}
	}
	return true
}
