// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when Advance is called.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*wait
	changed *sync.Cond
}

// wait is one registered After, Sleep or ticker.
type wait struct {
	deadline time.Time
	channel  chan time.Time
	// period is non-zero for tickers, which re-arm after firing.
	period  time.Duration
	stopped bool
}

// Fake returns a FakeClock reading initial until advanced.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot wait that fires once the clock has been
// advanced by d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&wait{deadline: c.now.Add(d), channel: channel})
	return channel
}

// NewTicker registers a periodic wait.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker with non-positive interval")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &wait{deadline: c.now.Add(d), channel: make(chan time.Time, 1), period: d}
	c.addLocked(w)
	return &Ticker{
		C: w.channel,
		stop: func() {
			c.mu.Lock()
			w.stopped = true
			c.mu.Unlock()
		},
	}
}

// Sleep blocks until the clock has been advanced by d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward and fires every wait whose deadline
// is now due, earliest first. Sends never block: a ticker whose channel
// is still full drops the tick.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now

	var due []*wait
	for {
		fired := c.expireLocked(target)
		if len(fired) == 0 {
			break
		}
		due = append(due, fired...)
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, w := range due {
		select {
		case w.channel <- target:
		default:
		}
	}
}

// expireLocked removes due one-shot waits and re-arms due tickers,
// returning what fired. Tickers spanning several periods fire once per
// period, which is why Advance calls this until nothing is due.
func (c *FakeClock) expireLocked(target time.Time) []*wait {
	var fired []*wait
	kept := c.pending[:0]
	for _, w := range c.pending {
		switch {
		case w.stopped:
		case w.deadline.After(target):
			kept = append(kept, w)
		case w.period > 0:
			fired = append(fired, &wait{deadline: w.deadline, channel: w.channel})
			w.deadline = w.deadline.Add(w.period)
			kept = append(kept, w)
		default:
			fired = append(fired, w)
		}
	}
	c.pending = kept
	return fired
}

// WaitForTimers blocks until at least n waits are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.countLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of registered, unfired waits.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countLocked()
}

func (c *FakeClock) addLocked(w *wait) {
	c.pending = append(c.pending, w)
	c.changed.Broadcast()
}

func (c *FakeClock) countLocked() int {
	count := 0
	for _, w := range c.pending {
		if !w.stopped {
			count++
		}
	}
	return count
}
