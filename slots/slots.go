package slots

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

const (
	// RedisSlots is the size of the Redis Cluster key space.
	RedisSlots = 16384
	// FleetSlots is the default slot count for fleet partitioning.
	FleetSlots = 100
)

var ErrInvalidSlotCount = errors.New("slot count must be greater than 0")

// Slot is a computed slot index. The zero value is None.
type Slot struct {
	n     int
	valid bool
}

func Of(n int) Slot {
	return Slot{n: n, valid: true}
}

// None is the result for a missing identifier.
func None() Slot {
	return Slot{}
}

func (s Slot) Value() (int, bool) {
	return s.n, s.valid
}

func (s Slot) IsNone() bool {
	return !s.valid
}

func (s Slot) Equal(other Slot) bool {
	return s.valid == other.valid && s.n == other.n
}

func (s Slot) String() string {
	if !s.valid {
		return ""
	}
	return strconv.Itoa(s.n)
}

func (s Slot) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(s.n)), nil
}

func (s *Slot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = None()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = Of(n)
	return nil
}

// Assignment pairs an identifier with the slot computed for it.
type Assignment struct {
	ID   string `json:"id"`
	Slot Slot   `json:"slot"`
}

func isMissing(id string) bool {
	return strings.TrimSpace(id) == ""
}
