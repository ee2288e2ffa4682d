// Package timectrl drives simulated time for the headless placement
// simulator: one tick per rendered frame.
package timectrl

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock is the read side of a Controller, so components can depend on
// simulated time without owning the loop.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives the simulated time once d has
	// elapsed in simulated time.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the Controller advances time.
type Mode int

const (
	// RealTime advances one tick per wall-clock tick.
	RealTime Mode = iota
	// Accelerated advances as quickly as listeners allow.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

type timer struct {
	at time.Time
	ch chan time.Time
}

// Controller owns simulated time and notifies listeners on every tick.
type Controller struct {
	mu    sync.RWMutex
	Start time.Time
	Tick  time.Duration
	Mode  Mode

	now       time.Time
	listeners []func(time.Time)
	timers    []timer
}

// New constructs a controller positioned at start.
func New(start time.Time, tick time.Duration, mode Mode) *Controller {
	return &Controller{
		Start: start,
		Tick:  tick,
		Mode:  mode,
		now:   start,
	}
}

// Now returns the current simulated time.
func (c *Controller) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// SetTime jumps to t and fires any timers that became due.
func (c *Controller) SetTime(t time.Time) {
	c.mu.Lock()
	c.now = t
	due := c.popDue()
	c.mu.Unlock()
	fire(due, t)
}

// After implements Clock. A non-positive d fires immediately.
func (c *Controller) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.timers = append(c.timers, timer{at: c.now.Add(d), ch: ch})
	sort.Slice(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
	return ch
}

// AddListener registers fn to run on every tick, in registration order.
func (c *Controller) AddListener(fn func(time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Run advances time until duration has elapsed (zero means forever) or ctx
// is done. It returns ctx.Err() when cancelled.
func (c *Controller) Run(ctx context.Context, duration time.Duration) error {
	var ticks <-chan time.Time
	if c.Mode == RealTime {
		ticker := time.NewTicker(c.Tick)
		defer ticker.Stop()
		ticks = ticker.C
	}

	elapsed := time.Duration(0)
	for duration <= 0 || elapsed < duration {
		if ticks != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticks:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		c.Step()
		elapsed += c.Tick
	}
	return nil
}

// StartAsync runs Run in a goroutine and returns a channel closed when it
// finishes.
func (c *Controller) StartAsync(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx, duration)
	}()
	return done
}

// Step advances one tick, fires due timers and calls every listener.
func (c *Controller) Step() time.Time {
	c.mu.Lock()
	c.now = c.now.Add(c.Tick)
	now := c.now
	due := c.popDue()
	listeners := append(([]func(time.Time))(nil), c.listeners...)
	c.mu.Unlock()

	fire(due, now)
	for _, fn := range listeners {
		fn(now)
	}
	return now
}

// popDue removes timers at or before now. Callers hold mu.
func (c *Controller) popDue() []timer {
	n := 0
	for n < len(c.timers) && !c.timers[n].at.After(c.now) {
		n++
	}
	due := c.timers[:n:n]
	c.timers = c.timers[n:]
	return due
}

func fire(due []timer, now time.Time) {
	for _, t := range due {
		t.ch <- now
	}
}
