package slots

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func TestSHA256Slot(t *testing.T) {
	t.Run("pinned identifiers", func(t *testing.T) {
		cases := map[string]int{
			"{4655F3A8-D531-11E5-9115-01A83A673161}": 83,
			"{DC186E50-CECD-11EE-AFAE-7787E87EF42F}": 39,
			"{A1B2C3D4-E5F6-11EE-1234-567890ABCDEF}": 61,
			"{FEDCBA98-7654-11EE-4321-ABCDEF123456}": 21,
			"{12345678-9ABC-11EE-DEF0-987654321ABC}": 59,
		}
		for id, want := range cases {
			slot, err := SHA256Slot(id, FleetSlots)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slot.Equal(Of(want)) {
				t.Fatalf("expected slot %d for %s, got %s", want, id, slot)
			}
		}
	})

	t.Run("braces are hashed", func(t *testing.T) {
		wrapped, _ := SHA256Slot("{4655F3A8-D531-11E5-9115-01A83A673161}", 16384)
		bare, _ := SHA256Slot("4655F3A8-D531-11E5-9115-01A83A673161", 16384)
		if wrapped.Equal(bare) {
			t.Fatalf("expected braces to change the slot, both got %s", wrapped)
		}
	})

	t.Run("one-based range", func(t *testing.T) {
		for _, m := range []int{1, 2, 10, 100} {
			for i := 0; i < 500; i++ {
				slot, _ := SHA256Slot(uuid.NewString(), m)
				v, ok := slot.Value()
				if !ok || v < 1 || v > m {
					t.Fatalf("slot %s out of [1, %d]", slot, m)
				}
			}
		}
	})

	t.Run("missing identifier", func(t *testing.T) {
		slot, err := SHA256Slot("", FleetSlots)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slot.IsNone() {
			t.Fatalf("expected no slot, got %s", slot)
		}
	})

	t.Run("invalid slot count", func(t *testing.T) {
		if _, err := SHA256Slot("x", -1); !errors.Is(err, ErrInvalidSlotCount) {
			t.Fatalf("expected ErrInvalidSlotCount, got %v", err)
		}
	})
}

func TestSHA256Slot_Distribution(t *testing.T) {
	const count = 100_000
	r := rand.New(rand.NewSource(42))
	counts := make([]int, FleetSlots+1)

	for i := 0; i < count; i++ {
		id, err := uuid.NewRandomFromReader(r)
		if err != nil {
			t.Fatalf("failed to generate identifier: %v", err)
		}
		slot, _ := SHA256Slot("{"+id.String()+"}", FleetSlots)
		v, _ := slot.Value()
		counts[v]++
	}

	mean := float64(count) / FleetSlots
	var sq float64
	for s := 1; s <= FleetSlots; s++ {
		d := float64(counts[s]) - mean
		sq += d * d
		if math.Abs(d) > 0.2*mean {
			t.Errorf("slot %d holds %d identifiers, expected about %.0f", s, counts[s], mean)
		}
	}
	if counts[0] != 0 {
		t.Fatalf("expected slot 0 to be unused, got %d", counts[0])
	}
	stddev := math.Sqrt(sq / FleetSlots)
	if stddev > 0.06*mean {
		t.Fatalf("expected stddev below 6%% of mean %.0f, got %.2f", mean, stddev)
	}
}

func TestXXHashSlot(t *testing.T) {
	slot, err := XXHashSlot("device-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := slot.Value()
	if !ok || v < 1 || v > 10 {
		t.Fatalf("slot %s out of [1, 10]", slot)
	}
	again, _ := XXHashSlot("device-1", 10)
	if !again.Equal(slot) {
		t.Fatalf("expected deterministic slot, got %s and %s", slot, again)
	}
	if none, _ := XXHashSlot(" ", 10); !none.IsNone() {
		t.Fatalf("expected no slot for blank identifier")
	}
}
