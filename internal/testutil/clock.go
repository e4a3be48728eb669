// Package testutil provides deterministic time and id sources for tests and
// scenario runs.
package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant returned by a clock built without an
// explicit start.
var DefaultEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe stepping clock.
//
// Every call to Now advances the clock by step, so the same sequence of calls
// yields the same timestamps on every run. A zero step freezes the clock.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	seq   int64
}

// NewDeterministicClock creates a clock whose first Now returns start.
// A zero start uses DefaultEpoch.
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	return &DeterministicClock{start: start.UTC(), step: step}
}

// Now returns the next timestamp.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.seq) * c.step)
	c.seq++
	return t
}

// Calls returns how many times Now has been called since the last Reset.
func (c *DeterministicClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock so the next Now returns start again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
