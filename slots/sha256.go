package slots

import (
	"crypto/sha256"
	"math/big"

	"github.com/cespare/xxhash/v2"
)

// SHA256Slot returns the one-based slot in [1, maxSlots]. Unlike CRC16Slot
// the identifier is hashed verbatim, braces included.
func SHA256Slot(id string, maxSlots int) (Slot, error) {
	if maxSlots <= 0 {
		return None(), ErrInvalidSlotCount
	}
	if isMissing(id) {
		return None(), nil
	}
	sum := sha256.Sum256([]byte(id))
	digest := new(big.Int).SetBytes(sum[:])
	mod := digest.Mod(digest, big.NewInt(int64(maxSlots)))
	return Of(int(mod.Int64()) + 1), nil
}

// XXHashSlot is a cheaper one-based alternative to SHA256Slot. Slots differ
// from SHA256Slot for the same identifier.
func XXHashSlot(id string, maxSlots int) (Slot, error) {
	if maxSlots <= 0 {
		return None(), ErrInvalidSlotCount
	}
	if isMissing(id) {
		return None(), nil
	}
	return Of(int(xxhash.Sum64String(id)%uint64(maxSlots)) + 1), nil
}
