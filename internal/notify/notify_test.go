package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyReachesSubscribers(t *testing.T) {
	var l List[int]
	var a, b []int
	cancelA := l.Subscribe(func(v int) { a = append(a, v) })
	l.Subscribe(func(v int) { b = append(b, v) })

	l.Notify(1)
	cancelA()
	cancelA()
	l.Notify(2)

	assert.Equal(t, []int{1}, a)
	assert.Equal(t, []int{1, 2}, b)
}

func TestNotifyWithoutSubscribers(t *testing.T) {
	var l List[string]
	assert.NotPanics(t, func() { l.Notify("x") })
}

func TestSubscriberCancelsItself(t *testing.T) {
	var l List[struct{}]
	calls := 0
	var cancel func()
	cancel = l.Subscribe(func(struct{}) {
		calls++
		cancel()
	})
	l.Notify(struct{}{})
	l.Notify(struct{}{})
	assert.Equal(t, 1, calls)
}

func TestConcurrentSubscribe(t *testing.T) {
	var l List[int]
	var mu sync.Mutex
	total := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cancel := l.Subscribe(func(v int) {
				mu.Lock()
				total += v
				mu.Unlock()
			})
			l.Notify(0)
			cancel()
		}()
	}
	wg.Wait()
	l.Notify(1)
	assert.Zero(t, total)
}
