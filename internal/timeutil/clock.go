// Package timeutil provides a testable abstraction over time operations.
//
// Capture windows and simulated sensor tickers are driven through a Clock so
// that tests can move time forward explicitly instead of sleeping.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// NewTimer creates a new Timer that will send the current time
	// on its channel after at least duration d.
	NewTimer(d time.Duration) Timer

	// NewTicker returns a new Ticker containing a channel that will
	// send the time with a period specified by the duration argument.
	NewTicker(d time.Duration) Ticker
}

// Timer represents a single event timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Ticker holds a channel that delivers "ticks" of a clock at intervals.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NewTimer creates a new Timer.
func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

// NewTicker returns a new Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.timer.C }
func (t *realTimer) Stop() bool          { return t.timer.Stop() }

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// MockClock only moves when Advance is called. Timers and tickers created
// from it fire during Advance, each delivering at most one value per call.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	created chan struct{}
}

// waiter is a pending timer (every == 0) or ticker. Fields are guarded by
// the owning clock's mutex.
type waiter struct {
	ch      chan time.Time
	at      time.Time
	every   time.Duration
	stopped bool
	fired   bool
}

func (w *waiter) live() bool { return !w.stopped && !w.fired }

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t, created: make(chan struct{}, 64)}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d and fires every timer or ticker that
// is due. A ticker that missed several periods ticks once and is rescheduled
// one period after the new time.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)

	live := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.live() {
			continue
		}
		if !c.now.Before(w.at) {
			select {
			case w.ch <- c.now:
			default:
			}
			if w.every > 0 {
				w.at = c.now.Add(w.every)
			} else {
				w.fired = true
				continue
			}
		}
		live = append(live, w)
	}
	clear(c.waiters[len(live):])
	c.waiters = live
}

// Pending returns the number of timers and tickers that can still fire.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if w.live() {
			n++
		}
	}
	return n
}

// TimerCreated receives once per timer created. Tests use it to wait until a
// capture window is open before advancing time.
func (c *MockClock) TimerCreated() <-chan struct{} {
	return c.created
}

func (c *MockClock) add(d, every time.Duration) *waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &waiter{ch: make(chan time.Time, 1), at: c.now.Add(d), every: every}
	c.waiters = append(c.waiters, w)
	return w
}

func (c *MockClock) NewTimer(d time.Duration) Timer {
	t := &mockTimer{c: c, w: c.add(d, 0)}
	select {
	case c.created <- struct{}{}:
	default:
	}
	return t
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	return &mockTicker{c: c, w: c.add(d, d)}
}

type mockTimer struct {
	c *MockClock
	w *waiter
}

func (t *mockTimer) C() <-chan time.Time { return t.w.ch }

func (t *mockTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := t.w.live()
	t.w.stopped = true
	return active
}

type mockTicker struct {
	c *MockClock
	w *waiter
}

func (t *mockTicker) C() <-chan time.Time { return t.w.ch }

func (t *mockTicker) Stop() {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	t.w.stopped = true
}
