// Package debounce delays a call until its input has been quiet for a while.
package debounce

import (
	"sync"
	"time"
)

// Handle is a pending scheduled call.
type Handle struct {
	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

// Schedule runs fn once after delay unless the returned Handle is cancelled
// first.
func Schedule(delay time.Duration, fn func()) *Handle {
	h := &Handle{}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = time.AfterFunc(delay, func() {
		h.mu.Lock()
		if h.done {
			h.mu.Unlock()
			return
		}
		h.done = true
		h.mu.Unlock()
		fn()
	})
	return h
}

// Cancel stops the call if it has not started. It reports whether the call
// was prevented.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return false
	}
	h.done = true
	h.timer.Stop()
	return true
}

// Debouncer coalesces bursts of Trigger calls into one call of the most
// recent function.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending *Handle
}

// New returns a Debouncer with the given quiet period.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger cancels any pending call and schedules fn.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending.Cancel()
	d.pending = Schedule(d.delay, fn)
}

// Flush cancels the pending call and runs fn now.
func (d *Debouncer) Flush(fn func()) {
	d.Stop()
	fn()
}

// Stop cancels the pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending.Cancel()
	d.pending = nil
}
