package escrow

import (
	"sync"
	"time"
)

// MonotonicClock wraps a unix-seconds source and never reports a value lower
// than one it already returned.
type MonotonicClock struct {
	mu     sync.Mutex
	source func() int64
	last   int64
}

// NewMonotonicClock returns a clock over source, or wall time when nil.
func NewMonotonicClock(source func() int64) *MonotonicClock {
	if source == nil {
		source = func() int64 { return time.Now().Unix() }
	}
	return &MonotonicClock{source: source}
}

func (c *MonotonicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.source()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}
