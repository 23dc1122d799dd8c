package analysis

import (
	"sync"

	"go.uber.org/atomic"

	"binmap/internal/ranges"
)

// Static is an in-memory provider. Every mutator recomposes the layout and
// notifies subscribers, the way a live analysis would report changes.
type Static struct {
	notifier

	mu     sync.Mutex
	length uint64
	ranges []ranges.AddressRange
	marks  []Mark

	layout  atomic.Pointer[Layout]
	queries atomic.Int64
	fail    atomic.Pointer[func(uint64) bool]
}

// NewStatic returns a provider over [0, length) with the given ranges. Bytes
// inside the ranges are Mapped.
func NewStatic(length uint64, rs ...ranges.AddressRange) *Static {
	s := &Static{length: length, ranges: rs}
	s.recompose()
	return s
}

func (s *Static) recompose() {
	marks := make([]Mark, 0, len(s.ranges)+len(s.marks))
	for _, r := range s.ranges {
		marks = append(marks, Mark{Start: r.Start, Length: r.Length, Kind: KindMapped})
	}
	marks = append(marks, s.marks...)
	s.layout.Store(Compose(s.length, marks))
}

func (s *Static) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.recompose()
	s.mu.Unlock()
	s.notify()
}

// AddressRanges implements Provider.
func (s *Static) AddressRanges() []ranges.AddressRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ranges.AddressRange(nil), s.ranges...)
}

// Length implements Provider.
func (s *Static) Length() uint64 { return s.layout.Load().Length() }

// ClassifyRun implements Provider.
func (s *Static) ClassifyRun(off uint64) (Facts, uint64, error) {
	s.queries.Inc()
	if fail := s.fail.Load(); fail != nil && (*fail)(off) {
		return Facts{}, 0, ErrUnavailable
	}
	return s.layout.Load().ClassifyRun(off)
}

// Queries counts ClassifyRun calls so far.
func (s *Static) Queries() int64 { return s.queries.Load() }

// SetLength changes the offset space size.
func (s *Static) SetLength(length uint64) {
	s.mutate(func() { s.length = length })
}

// SetRanges replaces the segment map.
func (s *Static) SetRanges(rs ...ranges.AddressRange) {
	s.mutate(func() { s.ranges = rs })
}

// AddMark adds content facts for a byte range.
func (s *Static) AddMark(m Mark) {
	s.mutate(func() { s.marks = append(s.marks, m) })
}

// AddSymbol tags sym's byte range.
func (s *Static) AddSymbol(sym *Symbol) {
	s.AddMark(Mark{Start: sym.Address, Length: sym.Size, Symbol: sym})
}

// RenameSymbol renames the first symbol called from; it reports whether one
// was found.
func (s *Static) RenameSymbol(from, to string) bool {
	found := false
	s.mutate(func() {
		for i, m := range s.marks {
			if m.Symbol != nil && m.Symbol.Name == from {
				renamed := *m.Symbol
				renamed.Name = to
				s.marks[i].Symbol = &renamed
				found = true
				return
			}
		}
	})
	return found
}

// FailWhen makes ClassifyRun return ErrUnavailable for offsets where fn
// returns true; nil clears it. It does not notify.
func (s *Static) FailWhen(fn func(off uint64) bool) {
	if fn == nil {
		s.fail.Store(nil)
		return
	}
	s.fail.Store(&fn)
}

// Touch notifies subscribers without changing anything.
func (s *Static) Touch() { s.notify() }
