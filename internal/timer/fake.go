package timer

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Callbacks run synchronously inside
// Advance/Set, in due-time order, after the clock lock is released.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*fakeTimer
}

type fakeTimer struct {
	id  uint64
	at  time.Time
	f   func()
	clk *Fake
}

// NewFake returns a Fake clock reading now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now, timers: map[uint64]*fakeTimer{}}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &fakeTimer{id: c.seq, at: c.now.Add(d), f: f, clk: c}
	c.timers[t.id] = t
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if _, ok := t.clk.timers[t.id]; !ok {
		return false
	}
	delete(t.clk.timers, t.id)
	return true
}

// Pending returns the number of armed, not yet fired callbacks.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d and fires every callback due by then.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set moves the clock to now (never backwards) and fires due callbacks.
// Callbacks armed by a firing callback fire too if already due.
func (c *Fake) Set(now time.Time) {
	for {
		c.mu.Lock()
		if now.After(c.now) {
			c.now = now
		}
		due := make([]*fakeTimer, 0)
		for _, t := range c.timers {
			if !t.at.After(c.now) {
				due = append(due, t)
			}
		}
		for _, t := range due {
			delete(c.timers, t.id)
		}
		c.mu.Unlock()

		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if !due[i].at.Equal(due[j].at) {
				return due[i].at.Before(due[j].at)
			}
			return due[i].id < due[j].id
		})
		for _, t := range due {
			t.f()
		}
	}
}
