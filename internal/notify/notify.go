// Package notify fans values out to subscribers.
package notify

import "sync"

// List holds subscribers of type func(T). The zero value is ready to use.
type List[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(T)
}

// Subscribe registers fn. The returned func unsubscribes it and may be
// called more than once.
func (l *List[T]) Subscribe(fn func(T)) (cancel func()) {
	l.mu.Lock()
	if l.subs == nil {
		l.subs = make(map[int]func(T))
	}
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Notify calls every subscriber with v on the calling goroutine. The lock is
// not held during the calls, so a subscriber may subscribe or cancel.
func (l *List[T]) Notify(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
