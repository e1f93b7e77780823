package testfixtures

import (
	"sync"
	"time"
)

// Clock is a hand-driven time source for tests that walk a care day forward:
// log a dose, advance past the completion window, recompute. It never ticks
// on its own.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock pinned to start. The zero value pins it to the
// shared ReferenceTime, keeping timestamps comparable across fixtures.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the pinned instant. Pass the method value where a
// `func() time.Time` is injected.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant, so a test
// can stamp successive writes with strictly increasing times.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
