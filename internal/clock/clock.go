// Package clock tracks a session's wall-clock lifecycle.
//
// A Clock moves Pending -> Active -> Ended. Remaining time is always derived
// from the underlying clockwork.Clock, never from a counter, so it cannot drift.
package clock

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var ErrAlreadyStarted = errors.New("session clock already started")
var ErrEnded = errors.New("session clock already ended")

type Phase int32

const (
	PhasePending Phase = iota
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type Clock struct {
	clock    clockwork.Clock
	duration time.Duration
	interval time.Duration

	mu        sync.Mutex
	phase     Phase
	startedAt time.Time
	endedAt   time.Time

	ticks   chan time.Duration
	done    chan struct{}
	endOnce sync.Once
}

// New builds a pending clock. Use clockwork.NewRealClock() in production and
// clockwork.NewFakeClock() in tests.
func New(c clockwork.Clock, duration, interval time.Duration) *Clock {
	return &Clock{
		clock:    c,
		duration: duration,
		interval: interval,
		ticks:    make(chan time.Duration, 1),
		done:     make(chan struct{}),
	}
}

func (c *Clock) Start() error {
	c.mu.Lock()
	switch c.phase {
	case PhaseActive:
		c.mu.Unlock()
		return ErrAlreadyStarted
	case PhaseEnded:
		c.mu.Unlock()
		return ErrEnded
	}
	c.phase = PhaseActive
	c.startedAt = c.clock.Now()
	c.mu.Unlock()

	timer := c.clock.NewTimer(c.duration)
	ticker := c.clock.NewTicker(c.interval)
	go c.run(timer, ticker)
	return nil
}

func (c *Clock) run(timer clockwork.Timer, ticker clockwork.Ticker) {
	defer ticker.Stop()
	defer timer.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-timer.Chan():
			c.End()
			return
		case <-ticker.Chan():
			if c.Phase() != PhaseActive {
				return
			}
			// A reader that has not drained the previous tick gets the next
			// one later; the clock never waits on it.
			select {
			case c.ticks <- c.Remaining():
			default:
			}
		}
	}
}

// End moves the clock to Ended. It reports true only for the call that made
// the transition, whether that was the deadline or an administrative end.
func (c *Clock) End() bool {
	ended := false
	c.endOnce.Do(func() {
		c.mu.Lock()
		c.phase = PhaseEnded
		c.endedAt = c.clock.Now()
		c.mu.Unlock()
		close(c.done)
		ended = true
	})
	return ended
}

// IfActive runs fn only while the clock is active. End waits for a running
// fn, so nothing fn does can land after the transition to Ended.
func (c *Clock) IfActive(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return false
	}
	fn()
	return true
}

func (c *Clock) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Remaining is the full duration while pending and zero once ended.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhasePending:
		return c.duration
	case PhaseEnded:
		return 0
	}
	rem := c.duration - c.clock.Since(c.startedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

func (c *Clock) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

func (c *Clock) Duration() time.Duration { return c.duration }

// Ticks delivers the remaining time once per interval while active.
func (c *Clock) Ticks() <-chan time.Duration { return c.ticks }

// Done is closed exactly once, when the clock enters Ended.
func (c *Clock) Done() <-chan struct{} { return c.done }

// Seconds rounds a remaining duration up to whole seconds, so a clock with
// 299.4s left still reports 300 until a full second has passed.
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
