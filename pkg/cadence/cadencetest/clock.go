// Package cadencetest provides a virtual clock for cadence and invitation tests.
package cadencetest

import (
	"context"
	"sync"
	"time"

	"entrust-concierge-be/pkg/cadence"
)

// Clock never blocks. Sleeps advance virtual time and are recorded; timers
// fire only when Advance passes their deadline.
type Clock struct {
	mu      sync.Mutex
	now     time.Duration
	sleeps  []time.Duration
	timers  []*timer
	OnSleep func(d time.Duration)
}

var _ cadence.Clock = (*Clock)(nil)

func New() *Clock {
	return &Clock{}
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now += d
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return nil
}

func (c *Clock) AfterFunc(d time.Duration, f func()) cadence.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{deadline: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves virtual time forward and runs every due timer synchronously.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	now := c.now
	var due []*timer
	for _, t := range c.timers {
		if t.deadline <= now && t.claim() {
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Sleeps returns the recorded sleep durations in order.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Now returns elapsed virtual time.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Pending counts timers that have neither fired nor been stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.active() {
			n++
		}
	}
	return n
}

type timer struct {
	mu       sync.Mutex
	deadline time.Duration
	f        func()
	done     bool
}

func (t *timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *timer) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *timer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}
