package testutil

import (
	"sync"
	"time"
)

// FixedClock is a thread-safe deterministic clock for tests.
//
// Every call to Now returns the current instant; Advance moves it
// forward. Timestamps on records created through a FixedClock are
// stable across runs, which keeps golden snapshots byte-identical.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// Epoch is the default starting instant.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFixedClock creates a clock pinned at Epoch.
func NewFixedClock() *FixedClock {
	return &FixedClock{now: Epoch}
}

// NewFixedClockAt creates a clock pinned at t.
func NewFixedClockAt(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now returns the current instant without advancing.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Tick advances by one second; handy between scenario steps so
// created/updated ordering is visible in snapshots.
func (c *FixedClock) Tick() time.Time {
	return c.Advance(time.Second)
}

// Reset pins the clock back to t for test reuse.
func (c *FixedClock) Reset(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
