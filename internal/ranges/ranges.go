// Package ranges holds the renderable address ranges of a binary.
//
// A Set is an immutable, sorted, non-overlapping list of ranges. It is built
// once per analysis refresh by Normalize and replaced wholesale in a Registry;
// there are no incremental edits.
package ranges

import (
	"math"
	"sort"

	"go.uber.org/atomic"
)

// AddressRange is a half-open byte range [Start, Start+Length).
type AddressRange struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
}

// End returns the exclusive end offset.
func (r AddressRange) End() uint64 { return r.Start + r.Length }

// Contains reports whether off lies inside r.
func (r AddressRange) Contains(off uint64) bool {
	return off >= r.Start && off-r.Start < r.Length
}

// Set is a normalized range list. The zero value is an empty set.
type Set struct {
	ranges []AddressRange
	prefix []uint64 // prefix[i] = sum of lengths of ranges[:i]
}

// Normalize builds a Set from arbitrary provider output. Zero-length ranges are
// dropped, ranges running past the end of the address space are clipped, and
// overlapping or touching ranges are merged. repaired reports whether the
// input violated the sorted/non-overlapping contract.
func Normalize(rs []AddressRange) (s *Set, repaired bool) {
	in := make([]AddressRange, 0, len(rs))
	for i, r := range rs {
		if r.Length == 0 {
			repaired = true
			continue
		}
		if r.Start > math.MaxUint64-r.Length {
			r.Length = math.MaxUint64 - r.Start
			repaired = true
		}
		if i > 0 && r.Start < rs[i-1].End() {
			repaired = true
		}
		in = append(in, r)
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].Start < in[j].Start })

	out := make([]AddressRange, 0, len(in))
	for _, r := range in {
		if n := len(out); n > 0 && r.Start <= out[n-1].End() {
			last := &out[n-1]
			if r.End() > last.End() {
				last.Length = r.End() - last.Start
			}
			continue
		}
		out = append(out, r)
	}

	prefix := make([]uint64, len(out)+1)
	for i, r := range out {
		prefix[i+1] = prefix[i] + r.Length
	}
	return &Set{ranges: out, prefix: prefix}, repaired
}

// Len returns the number of ranges.
func (s *Set) Len() int { return len(s.ranges) }

// Ranges returns a copy of the ranges in ascending order.
func (s *Set) Ranges() []AddressRange {
	return append([]AddressRange(nil), s.ranges...)
}

// Total is the sum of all range lengths.
func (s *Set) Total() uint64 {
	if len(s.prefix) == 0 {
		return 0
	}
	return s.prefix[len(s.prefix)-1]
}

// Extent is the end offset of the last range, or 0 for an empty set.
func (s *Set) Extent() uint64 {
	if len(s.ranges) == 0 {
		return 0
	}
	return s.ranges[len(s.ranges)-1].End()
}

// index returns the index of the last range with Start <= off, or -1.
func (s *Set) index(off uint64) int {
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].Start > off })
	return i - 1
}

// IsRenderable reports whether off lies in one of the ranges.
func (s *Set) IsRenderable(off uint64) bool {
	i := s.index(off)
	return i >= 0 && s.ranges[i].Contains(off)
}

// Clamp snaps off to the nearest renderable offset. exact is true when off was
// already renderable. Offsets in a gap go to the closer boundary; a tie goes
// to the start of the following range. An empty set returns off unchanged and
// exact=false.
func (s *Set) Clamp(off uint64) (snapped uint64, exact bool) {
	if len(s.ranges) == 0 {
		return off, false
	}
	i := s.index(off)
	if i < 0 {
		return s.ranges[0].Start, false
	}
	prev := s.ranges[i]
	if prev.Contains(off) {
		return off, true
	}
	last := prev.End() - 1
	if i+1 == len(s.ranges) {
		return last, false
	}
	next := s.ranges[i+1].Start
	if off-last < next-off {
		return last, false
	}
	return next, false
}

// Linear maps off into the gap-collapsed linear space in which the ranges are
// laid end to end. ok is false when off is not renderable.
func (s *Set) Linear(off uint64) (uint64, bool) {
	i := s.index(off)
	if i < 0 || !s.ranges[i].Contains(off) {
		return 0, false
	}
	return s.prefix[i] + off - s.ranges[i].Start, true
}

// Address inverts Linear.
func (s *Set) Address(linear uint64) (uint64, bool) {
	if linear >= s.Total() {
		return 0, false
	}
	// prefix is ascending; find the range whose linear span holds linear.
	i := sort.Search(len(s.ranges), func(i int) bool { return s.prefix[i+1] > linear })
	return s.ranges[i].Start + linear - s.prefix[i], true
}

// Registry publishes the current Set to concurrent readers.
type Registry struct {
	cur atomic.Pointer[Set]
}

var empty = &Set{}

// Load returns the current set; never nil.
func (r *Registry) Load() *Set {
	if s := r.cur.Load(); s != nil {
		return s
	}
	return empty
}

// Store replaces the current set wholesale.
func (r *Registry) Store(s *Set) {
	if s == nil {
		s = empty
	}
	r.cur.Store(s)
}
