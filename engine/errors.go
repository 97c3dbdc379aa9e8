package engine

import (
	"errors"

	"github.com/tarcisiozf/dslot/engine/internal/store"
	"github.com/tarcisiozf/dslot/slots"
)

var (
	ErrNotFound           = store.ErrKeyNotFound
	ErrPersistenceDisable = errors.New("persistence is disabled")
	ErrNotStarted         = errors.New("engine is not started")
)

// ErrAlgorithm reports an unknown algorithm name.
type ErrAlgorithm struct {
	Name string
}

func (e ErrAlgorithm) Error() string {
	return "unknown algorithm " + e.Name
}

// IsInputError reports whether err was caused by the caller's arguments
// rather than by the engine.
func IsInputError(err error) bool {
	var algErr ErrAlgorithm
	return errors.Is(err, slots.ErrInvalidSlotCount) || errors.Is(err, slots.ErrInvalidBands) || errors.As(err, &algErr)
}
