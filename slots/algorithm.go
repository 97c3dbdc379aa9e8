package slots

import (
	"fmt"
	"sort"
)

var mapAlgorithm = map[string]Algorithm{}

var (
	CRC16  = addAlgorithm("crc16", 0, RedisSlots, CRC16Slot)
	SHA256 = addAlgorithm("sha256", 1, FleetSlots, SHA256Slot)
	XXHash = addAlgorithm("xxhash", 2, FleetSlots, XXHashSlot)
)

type slotFunc func(id string, n int) (Slot, error)

// Algorithm selects a slot function together with its numbering base.
type Algorithm struct {
	name         string
	code         byte
	defaultSlots int
	fn           slotFunc
}

func addAlgorithm(name string, code byte, defaultSlots int, fn slotFunc) Algorithm {
	a := Algorithm{name: name, code: code, defaultSlots: defaultSlots, fn: fn}
	mapAlgorithm[name] = a
	return a
}

func ParseAlgorithm(name string) (Algorithm, error) {
	if a, ok := mapAlgorithm[name]; ok {
		return a, nil
	}
	return Algorithm{}, fmt.Errorf("invalid algorithm %q", name)
}

func AlgorithmByCode(code byte) (Algorithm, error) {
	for _, a := range mapAlgorithm {
		if a.code == code {
			return a, nil
		}
	}
	return Algorithm{}, fmt.Errorf("invalid algorithm code %d", code)
}

func (a Algorithm) String() string {
	return a.name
}

func (a Algorithm) Code() byte {
	return a.code
}

func (a Algorithm) Equal(other Algorithm) bool {
	return a.name == other.name
}

func (a Algorithm) IsValid() bool {
	return a.fn != nil
}

// ZeroBased reports whether slots start at 0 rather than 1.
func (a Algorithm) ZeroBased() bool {
	return a.name == CRC16.name
}

func (a Algorithm) DefaultSlots() int {
	return a.defaultSlots
}

// Range is the inclusive slot range produced for n slots.
func (a Algorithm) Range(n int) SlotRange {
	if a.ZeroBased() {
		return SlotRange{0, n - 1}
	}
	return SlotRange{1, n}
}

func (a Algorithm) Assign(id string, n int) (Slot, error) {
	if a.fn == nil {
		return None(), fmt.Errorf("invalid algorithm %q", a.name)
	}
	return a.fn(id, n)
}

// Algorithms lists the registered algorithms ordered by code.
func Algorithms() []Algorithm {
	list := make([]Algorithm, 0, len(mapAlgorithm))
	for _, a := range mapAlgorithm {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].code < list[j].code })
	return list
}
