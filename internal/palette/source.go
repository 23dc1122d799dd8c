package palette

import (
	"go.uber.org/atomic"

	"binmap/internal/notify"
)

// Source is the theme collaborator: it owns the current palette and tells
// subscribers when the theme changes.
type Source struct {
	cur  atomic.Pointer[Palette]
	subs notify.List[*Palette]
}

// NewSource returns a Source holding p.
func NewSource(p *Palette) *Source {
	s := &Source{}
	s.cur.Store(p)
	return s
}

// Current returns the active palette.
func (s *Source) Current() *Palette { return s.cur.Load() }

// Set installs p and notifies subscribers synchronously.
func (s *Source) Set(p *Palette) {
	s.cur.Store(p)
	s.subs.Notify(p)
}

// OnChanged registers fn for theme changes. The returned func unsubscribes.
func (s *Source) OnChanged(fn func(*Palette)) (cancel func()) {
	return s.subs.Subscribe(fn)
}
