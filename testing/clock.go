package testing

import (
	"sync"
	"time"

	"github.com/arloliu/draftsync/types"
)

// FakeClock is a deterministic types.Clock.
//
// Time only moves when Advance is called. Timers whose deadline is reached fire
// in deadline order, each observing Now() equal to its own deadline. A timer
// created or reset with a non-positive duration fires immediately.
//
// Fired values are delivered on a buffered channel of size one; a consumer that
// reacts to a fire asynchronously should be given a chance to run (for example
// via require.Eventually) before the next Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	created int
}

var _ types.Clock = (*FakeClock)(nil)

// NewFakeClock creates a clock whose current time is start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// NewTimer creates a timer firing after d of fake time.
func (c *FakeClock) NewTimer(d time.Duration) types.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, ch: make(chan time.Time, 1)}
	c.created++
	c.timers = append(c.timers, t)
	c.armLocked(t, d)

	return t
}

// Advance moves the clock forward by d, firing every timer whose deadline is reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for {
		next := c.nextDueLocked(target)
		if next == nil {
			break
		}
		c.now = next.deadline
		c.fireLocked(next)
	}
	c.now = target
}

// PendingTimers returns the number of armed timers.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if t.active {
			n++
		}
	}

	return n
}

// TimersCreated returns how many timers were ever created on this clock.
func (c *FakeClock) TimersCreated() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.created
}

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	var next *fakeTimer
	for _, t := range c.timers {
		if !t.active || t.deadline.After(target) {
			continue
		}
		if next == nil || t.deadline.Before(next.deadline) {
			next = t
		}
	}

	return next
}

func (c *FakeClock) armLocked(t *fakeTimer, d time.Duration) {
	if d <= 0 {
		t.deadline = c.now
		c.fireLocked(t)

		return
	}
	t.deadline = c.now.Add(d)
	t.active = true
}

func (c *FakeClock) fireLocked(t *fakeTimer) {
	t.active = false
	select {
	case t.ch <- c.now:
	default:
	}
}

type fakeTimer struct {
	clock    *FakeClock
	ch       chan time.Time
	deadline time.Time
	active   bool
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.ch
}

// Stop disarms the timer and discards an undelivered fire.
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := t.active
	t.active = false
	t.drain()

	return wasActive
}

// Reset re-arms the timer, discarding an undelivered fire.
func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := t.active
	t.active = false
	t.drain()
	t.clock.armLocked(t, d)

	return wasActive
}

func (t *fakeTimer) drain() {
	select {
	case <-t.ch:
	default:
	}
}
