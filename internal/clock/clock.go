// Package clock supplies ledger timestamps in milliseconds since the Unix epoch.
package clock

import (
	"sync"
	"time"
)

// Monotonic never returns a value lower than one it already returned, even
// if the wall clock steps backwards.
type Monotonic struct {
	mu   sync.Mutex
	now  func() time.Time
	last uint64
}

func NewSystem() *Monotonic {
	return NewMonotonic(time.Now)
}

func NewMonotonic(now func() time.Time) *Monotonic {
	return &Monotonic{now: now}
}

func (c *Monotonic) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if ms < 0 {
		ms = 0
	}
	ts := uint64(ms)
	if ts < c.last {
		return c.last
	}
	c.last = ts
	return ts
}
