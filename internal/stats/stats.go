// Package stats summarizes how identifiers spread over a slot space.
package stats

import (
	"math"
	"sort"

	"github.com/tarcisiozf/dslot/slots"
)

type Row struct {
	Slot    int     `json:"slot"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type Summary struct {
	Algorithm   string      `json:"algorithm"`
	Slots       int         `json:"slots"`
	Total       int         `json:"total"`
	Assigned    int         `json:"assigned"`
	Missing     int         `json:"missing"`
	Counts      map[int]int `json:"-"`
	UsedSlots   int         `json:"used_slots"`
	UnusedSlots []int       `json:"unused_slots"`
	Min         int         `json:"min"`
	Max         int         `json:"max"`
	Mean        float64     `json:"mean"`
	StdDev      float64     `json:"stddev"`

	slotRange slots.SlotRange
}

// Distribution counts assignments per slot over the full range of alg for
// n slots, empty slots included.
func Distribution(assignments []slots.Assignment, alg slots.Algorithm, n int) Summary {
	s := Summary{
		Algorithm: alg.String(),
		Slots:     n,
		Total:     len(assignments),
		Counts:    make(map[int]int),
		slotRange: alg.Range(n),
	}
	for _, a := range assignments {
		v, ok := a.Slot.Value()
		if !ok {
			s.Missing++
			continue
		}
		s.Assigned++
		s.Counts[v]++
	}
	if n <= 0 {
		return s
	}

	s.Mean = float64(s.Assigned) / float64(n)
	s.Min = math.MaxInt
	var sq float64
	for slot := s.slotRange.Start(); slot <= s.slotRange.End(); slot++ {
		c := s.Counts[slot]
		if c == 0 {
			s.UnusedSlots = append(s.UnusedSlots, slot)
		} else {
			s.UsedSlots++
		}
		s.Min = min(s.Min, c)
		s.Max = max(s.Max, c)
		d := float64(c) - s.Mean
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(n))
	return s
}

// Rows lists every slot in order with its share of assigned identifiers.
func (s Summary) Rows() []Row {
	rows := make([]Row, 0, s.Slots)
	for slot := s.slotRange.Start(); slot <= s.slotRange.End(); slot++ {
		row := Row{Slot: slot, Count: s.Counts[slot]}
		if s.Assigned > 0 {
			row.Percent = float64(row.Count) / float64(s.Assigned) * 100
		}
		rows = append(rows, row)
	}
	return rows
}

type ShardCount struct {
	Shard string `json:"shard"`
	Count int    `json:"count"`
}

// ShardCounts totals identifiers per shard, including the error sentinel for
// missing slots. Shards are returned in table order, the sentinel last.
func (s Summary) ShardCounts(table *slots.BandTable) []ShardCount {
	totals := make(map[string]int)
	for slot, c := range s.Counts {
		totals[table.ShardFor(slots.Of(slot))] += c
	}
	totals[slots.ErrorShard] += s.Missing

	names := table.Names()
	result := make([]ShardCount, 0, len(names)+1)
	for _, name := range names {
		result = append(result, ShardCount{Shard: name, Count: totals[name]})
		delete(totals, name)
	}
	rest := make([]string, 0, len(totals))
	for name := range totals {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		if totals[name] > 0 {
			result = append(result, ShardCount{Shard: name, Count: totals[name]})
		}
	}
	return result
}
