package service

import (
	"sync"
	"time"
)

// Clock hands out message timestamps. Postgres stores microseconds, so
// timestamps are truncated to that precision and each one is forced strictly
// after the last one issued by this process.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Now is the unadjusted wall clock, for rows that do not take part in
// timeline ordering.
func (c *Clock) Now() time.Time {
	return c.now().UTC()
}
