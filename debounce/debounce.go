// Package debounce coalesces bursts of triggers into a single trailing
// call. It backs the builder draft autosave and the response answer
// autosave.
package debounce

import (
	"sync"
	"time"
)

// Debouncer fires the most recent function once no trigger has arrived for
// the configured delay. A positive maxWait caps how long an uninterrupted
// burst of triggers can postpone the call.
type Debouncer struct {
	delay   time.Duration
	maxWait time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	fn       func()
	deadline time.Time
	stopped  bool
}

func New(delay, maxWait time.Duration) *Debouncer {
	return &Debouncer{delay: delay, maxWait: maxWait}
}

// Trigger schedules fn after the delay, replacing any pending call.
// Trailing-edge only: a trigger arriving before the timer fires restarts it.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	now := time.Now()
	if d.timer == nil {
		d.deadline = time.Time{}
		if d.maxWait > 0 {
			d.deadline = now.Add(d.maxWait)
		}
	} else {
		d.timer.Stop()
	}

	delay := d.delay
	if !d.deadline.IsZero() {
		if remaining := d.deadline.Sub(now); remaining < delay {
			delay = max(remaining, 0)
		}
	}

	d.fn = fn
	d.timer = time.AfterFunc(delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.fn
	d.fn = nil
	d.timer = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}

// Flush runs the pending call immediately, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.fn
	d.fn = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop cancels any pending call and rejects further triggers. Required on
// teardown so no write outlives its owner.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.fn = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
