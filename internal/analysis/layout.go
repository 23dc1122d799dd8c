package analysis

import (
	"sort"
)

// Kind is a bit set of content facts carried by a Mark.
type Kind uint8

const (
	KindMapped Kind = 1 << iota
	KindCode
	KindDataVar
	KindString
)

// Mark attaches facts to a byte range. Marks may overlap: kinds are OR-ed
// and, among overlapping marks with a Symbol, the one added last wins.
type Mark struct {
	Start  uint64
	Length uint64
	Kind   Kind
	Symbol *Symbol
}

// segment is one elementary interval of a Layout.
type segment struct {
	start, end uint64
	facts      Facts
}

// Layout is the composed, non-overlapping view of a mark list.
type Layout struct {
	length uint64
	segs   []segment
}

// Compose sweeps mark boundaries in offset order and produces maximal
// segments of identical facts. Marks are clipped to [0, length).
func Compose(length uint64, marks []Mark) *Layout {
	type event struct {
		pos   uint64
		idx   int
		isEnd bool
	}
	events := make([]event, 0, 2*len(marks))
	for i, m := range marks {
		if m.Length == 0 || m.Start >= length {
			continue
		}
		end := m.Start + m.Length
		if end > length || end < m.Start {
			end = length
		}
		events = append(events, event{m.Start, i, false}, event{end, i, true})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].pos != events[j].pos {
			return events[i].pos < events[j].pos
		}
		if events[i].isEnd != events[j].isEnd {
			return events[i].isEnd
		}
		return events[i].idx < events[j].idx
	})

	active := make(map[int]bool)
	current := func() Facts {
		var f Facts
		best := -1
		for idx := range active {
			m := marks[idx]
			f.Mapped = f.Mapped || m.Kind&KindMapped != 0
			f.Code = f.Code || m.Kind&KindCode != 0
			f.DataVar = f.DataVar || m.Kind&KindDataVar != 0
			f.String = f.String || m.Kind&KindString != 0
			if m.Symbol != nil && idx > best {
				f.Symbol, best = m.Symbol, idx
			}
		}
		return f
	}

	l := &Layout{length: length}
	var cur Facts
	curPos := uint64(0)
	for i := 0; i < len(events); {
		pos := events[i].pos
		if pos > curPos && cur != (Facts{}) {
			l.add(curPos, pos, cur)
		}
		for i < len(events) && events[i].pos == pos {
			if events[i].isEnd {
				delete(active, events[i].idx)
			} else {
				active[events[i].idx] = true
			}
			i++
		}
		curPos = pos
		cur = current()
	}
	return l
}

func (l *Layout) add(start, end uint64, f Facts) {
	if n := len(l.segs); n > 0 && l.segs[n-1].end == start && l.segs[n-1].facts == f {
		l.segs[n-1].end = end
		return
	}
	l.segs = append(l.segs, segment{start: start, end: end, facts: f})
}

// Length returns the size of the offset space.
func (l *Layout) Length() uint64 { return l.length }

// ClassifyRun returns the facts at off and the length of the run sharing them.
// Offsets not covered by any mark have zero facts up to the next segment.
func (l *Layout) ClassifyRun(off uint64) (Facts, uint64, error) {
	if off >= l.length {
		return Facts{}, 0, ErrOutOfRange
	}
	i := sort.Search(len(l.segs), func(i int) bool { return l.segs[i].end > off })
	if i == len(l.segs) {
		return Facts{}, l.length - off, nil
	}
	s := l.segs[i]
	if off < s.start {
		return Facts{}, s.start - off, nil
	}
	return s.facts, s.end - off, nil
}
