// Package analysis defines what the feature map consumes from an analysis
// provider, and ships two providers: Static (in memory) and ELF.
//
// Providers answer run-shaped queries: ClassifyRun returns the facts for the
// byte at off together with how many following bytes share them, so the
// engine queries once per run rather than once per byte.
package analysis

import (
	"errors"
	"fmt"

	"binmap/internal/notify"
	"binmap/internal/palette"
	"binmap/internal/ranges"
)

var (
	ErrUnavailable = errors.New("analysis: provider unavailable")
	ErrOutOfRange  = errors.New("analysis: offset out of range")
)

// Symbol is a tagged symbol covering a byte range. Color is used when
// HasColor is set; otherwise the classifier derives one from Name/Address.
type Symbol struct {
	Name     string
	Address  uint64
	Size     uint64
	Color    palette.ColorID
	HasColor bool
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s@0x%x+0x%x", s.Name, s.Address, s.Size)
}

// Facts are the classification inputs for one run of bytes.
type Facts struct {
	Mapped  bool
	Code    bool
	DataVar bool
	String  bool
	Symbol  *Symbol // non-nil when the run lies in a tagged symbol
}

// Provider is the analysis collaborator.
type Provider interface {
	// AddressRanges returns the segment map. It may be unsorted or overlap;
	// the engine normalizes it.
	AddressRanges() []ranges.AddressRange
	// Length is the size of the linear offset space.
	Length() uint64
	// ClassifyRun returns the facts at off and the number of bytes from off
	// that share them (at least 1 on success).
	ClassifyRun(off uint64) (Facts, uint64, error)
	// Subscribe registers fn for opaque "something changed" events.
	Subscribe(fn func()) (cancel func())
}

// notifier fans change events out to subscribers.
type notifier struct {
	subs notify.List[struct{}]
}

func (n *notifier) Subscribe(fn func()) (cancel func()) {
	return n.subs.Subscribe(func(struct{}) { fn() })
}

func (n *notifier) notify() { n.subs.Notify(struct{}{}) }
