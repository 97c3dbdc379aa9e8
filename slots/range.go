package slots

import "fmt"

// SlotRange is an inclusive [start, end] slot interval.
type SlotRange [2]int

func FullRange() SlotRange {
	return SlotRange{0, RedisSlots - 1}
}

func (r SlotRange) Contains(slot int) bool {
	return slot >= r[0] && slot <= r[1]
}

func (r SlotRange) Size() int {
	return r[1] - r[0] + 1
}

// Partition splits the range into n contiguous ranges the way redis-cli
// allocates slots to masters: range i ends at round((i+1)*size/n - 1), the
// last one ends at the end of r.
func (r SlotRange) Partition(n int) ([]SlotRange, error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of partitions must be greater than 0")
	}
	size := r.Size()
	if n > size {
		return nil, fmt.Errorf("cannot partition into more than %d slots", size)
	}
	ranges := make([]SlotRange, 0, n)
	start := r[0]
	for i := 0; i < n; i++ {
		// round half up of ((i+1)*size - n) / n
		end := r[0] + ((2*((i+1)*size-n))+n)/(2*n)
		if i == n-1 || end > r[1] {
			end = r[1]
		}
		ranges = append(ranges, SlotRange{start, end})
		start = end + 1
	}
	return ranges, nil
}

func (r SlotRange) String() string {
	return fmt.Sprintf("[%d, %d]", r[0], r[1])
}

func (r SlotRange) Start() int {
	return r[0]
}

func (r SlotRange) End() int {
	return r[1]
}

func (r SlotRange) Equal(other SlotRange) bool {
	return r[0] == other[0] && r[1] == other[1]
}

func (r SlotRange) Intersects(other SlotRange) bool {
	return other[0] <= r[1] && other[1] >= r[0]
}

func (r SlotRange) IsValid() bool {
	return r[0] >= 0 && r[0] <= r[1]
}
