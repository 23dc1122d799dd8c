// Package nav turns pointer positions into navigation requests and the
// current address into a highlight position.
package nav

import (
	"fmt"

	"binmap/internal/mapper"
	"binmap/internal/ranges"
)

// Request asks the view to move to Offset. Exact is false when the pointer
// was off the canvas or in a gap and the offset was snapped. AddHistory
// tells the view whether to record a history entry.
type Request struct {
	Offset     uint64
	Exact      bool
	AddHistory bool
}

func (r Request) String() string {
	return fmt.Sprintf("0x%x exact=%t history=%t", r.Offset, r.Exact, r.AddHistory)
}

// Navigator is the view that performs the jump.
type Navigator interface {
	Navigate(Request)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Request)

func (f NavigatorFunc) Navigate(r Request) { f(r) }

// Bridge resolves pointer events. It keeps the drag state, so it belongs to
// the interactive context.
type Bridge struct {
	// HistoryForInexact records history entries for snapped clicks too.
	HistoryForInexact bool

	dragging bool
}

// ResolveClick inverts pt and snaps the offset into set. It returns false
// when nothing is mapped.
func (b *Bridge) ResolveClick(m mapper.Mapper, set *ranges.Set, pt mapper.Point) (Request, bool) {
	off, exact, ok := m.Inverse(pt)
	if !ok {
		return Request{}, false
	}
	if set != nil && set.Len() > 0 {
		snapped, inRange := set.Clamp(off)
		off, exact = snapped, exact && inRange
	}
	return Request{
		Offset:     off,
		Exact:      exact,
		AddHistory: exact || b.HistoryForInexact,
	}, true
}

// BeginDrag starts a navigation drag.
func (b *Bridge) BeginDrag() { b.dragging = true }

// Dragging reports whether a drag is in progress.
func (b *Bridge) Dragging() bool { return b.dragging }

// Drag resolves a pointer move during a drag. Moves never add history.
func (b *Bridge) Drag(m mapper.Mapper, set *ranges.Set, pt mapper.Point) (Request, bool) {
	if !b.dragging {
		return Request{}, false
	}
	req, ok := b.ResolveClick(m, set, pt)
	req.AddHistory = false
	return req, ok
}

// EndDrag finishes the drag; it reports whether one was in progress.
func (b *Bridge) EndDrag() bool {
	was := b.dragging
	b.dragging = false
	return was
}

// OnAddressChanged forward-maps the current address to the highlight
// position.
func OnAddressChanged(m mapper.Mapper, off uint64) (mapper.Point, bool) {
	return m.Forward(off)
}
