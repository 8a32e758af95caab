package scenario

import (
	"sort"
	"sync"
	"time"

	"github.com/bnema/walletsync/internal/ports"
)

// VirtualClock is a ports.Clock and ports.Scheduler whose time only moves through AdvanceTo.
type VirtualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*virtualTimer
}

type virtualTimer struct {
	clock *VirtualClock
	at    time.Time
	seq   int
	fn    func()
	done  bool
}

var (
	_ ports.Clock     = (*VirtualClock)(nil)
	_ ports.Scheduler = (*VirtualClock)(nil)
)

func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *VirtualClock) AfterFunc(d time.Duration, fn func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	timer := &virtualTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

func (t *virtualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	return true
}

// AdvanceTo fires every timer due at or before target in deadline order, then parks the clock
// at target. Timers scheduled by fired callbacks are honoured in the same pass. It never moves
// time backwards.
func (c *VirtualClock) AdvanceTo(target time.Time) int {
	fired := 0
	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.compactLocked()
			c.mu.Unlock()
			return fired
		}
		next.done = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()

		next.fn()
		fired++
	}
}

// Pending reports how many timers have neither fired nor been stopped.
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := 0
	for _, timer := range c.timers {
		if !timer.done {
			pending++
		}
	}
	return pending
}

func (c *VirtualClock) nextDueLocked(target time.Time) *virtualTimer {
	due := make([]*virtualTimer, 0)
	for _, timer := range c.timers {
		if !timer.done && !timer.at.After(target) {
			due = append(due, timer)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

func (c *VirtualClock) compactLocked() {
	live := c.timers[:0]
	for _, timer := range c.timers {
		if !timer.done {
			live = append(live, timer)
		}
	}
	c.timers = live
}
