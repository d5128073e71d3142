// Package observable provides a value cell that notifies subscribers when it
// changes.
package observable

import "sync"

// Value holds a value and wakes subscribers on every Set. Notifications are
// coalesced: a slow subscriber sees at most one pending wake-up and reads the
// latest value with Get.
type Value[T any] struct {
	mu   sync.RWMutex
	v    T
	subs map[chan struct{}]struct{}
}

// NewValue returns a cell holding v.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{v: v, subs: make(map[chan struct{}]struct{})}
}

// Get returns the current value.
func (c *Value[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Set replaces the value and notifies subscribers.
func (c *Value[T]) Set(v T) {
	c.mu.Lock()
	c.v = v
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	c.mu.Unlock()
}

// Subscribe returns a channel signalled after each Set and a func that
// removes the subscription.
func (c *Value[T]) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}
