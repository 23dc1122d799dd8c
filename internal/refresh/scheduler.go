// Package refresh coalesces change notifications into background refresh
// passes.
//
// The scheduler is a four-state machine held in a single atomic word. Any
// number of notifications between two passes collapse into one pending
// pass; a notification that lands while a pass runs schedules exactly one
// follow-up and marks the running pass as superseded.
package refresh

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// State is the scheduler state.
type State int32

const (
	Idle State = iota
	Pending
	Refreshing
	PendingWhileRefreshing
)

var stateNames = [...]string{"idle", "pending", "refreshing", "pending-while-refreshing"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// DefaultDebounce is the quiet period Run waits before starting a pass.
const DefaultDebounce = 50 * time.Millisecond

// Scheduler is safe for concurrent use. Notify may be called from any
// goroutine; Begin and Finish belong to the single goroutine running passes.
type Scheduler struct {
	state    atomic.Int32
	kick     chan struct{}
	debounce time.Duration
	log      zerolog.Logger
}

// New returns an idle scheduler. A zero debounce disables the quiet period.
func New(debounce time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		kick:     make(chan struct{}, 1),
		debounce: debounce,
		log:      log,
	}
}

// State returns the current state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Notify records a change: Idle becomes Pending and Refreshing becomes
// PendingWhileRefreshing. Pending states absorb it.
func (s *Scheduler) Notify() {
	for {
		cur := State(s.state.Load())
		var next State
		switch cur {
		case Idle:
			next = Pending
		case Refreshing:
			next = PendingWhileRefreshing
		default:
			return
		}
		if s.state.CompareAndSwap(int32(cur), int32(next)) {
			s.log.Trace().Stringer("from", cur).Stringer("to", next).Msg("notify")
			s.wake()
			return
		}
	}
}

func (s *Scheduler) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Begin moves Pending to Refreshing. It reports false when no pass is due.
func (s *Scheduler) Begin() bool {
	return s.state.CompareAndSwap(int32(Pending), int32(Refreshing))
}

// Finish ends the running pass. It returns true when a notification arrived
// during the pass, in which case the scheduler is Pending again.
func (s *Scheduler) Finish() bool {
	if s.state.CompareAndSwap(int32(Refreshing), int32(Idle)) {
		return false
	}
	if s.state.CompareAndSwap(int32(PendingWhileRefreshing), int32(Pending)) {
		return true
	}
	s.log.Warn().Stringer("state", s.State()).Msg("finish without a running pass")
	return false
}

// Superseded reports whether the running pass's result is already stale.
func (s *Scheduler) Superseded() bool {
	return s.State() == PendingWhileRefreshing
}

// Run drives passes until ctx is done. Each wake-up waits out the debounce
// interval so a burst of notifications costs one pass, then runs pass until
// no follow-up is pending.
func (s *Scheduler) Run(ctx context.Context, pass func(context.Context)) error {
	for {
		// Skip the wait when a notification is already pending.
		if s.State() != Pending {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.kick:
			}
		}

		if s.debounce > 0 {
			timer := time.NewTimer(s.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		// Kicks that arrived during the quiet period are covered by the
		// pass about to start.
		select {
		case <-s.kick:
		default:
		}

		for s.Begin() {
			pass(ctx)
			if !s.Finish() || ctx.Err() != nil {
				break
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
