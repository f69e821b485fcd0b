package persist

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid triggers into a single callback invocation.
// Only the callback passed to the last Trigger runs, once the duration has
// elapsed with no further triggers.
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	pending  func()
	mu       sync.Mutex
	seq      uint64
}

// NewDebouncer creates a Debouncer with the specified duration.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Trigger schedules callback after the debounce duration, replacing any
// previously scheduled callback.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	seq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = callback
	d.timer = time.AfterFunc(d.duration, func() {
		fn := d.take(seq)
		if fn != nil {
			fn()
		}
	})
}

// take claims the pending callback if seq is still the latest trigger. A
// timer whose Stop lost the race finds a newer seq and does nothing.
func (d *Debouncer) take(seq uint64) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq != d.seq {
		return nil
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	return fn
}

// Cancel drops any pending callback.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Flush runs the pending callback now, on the caller's goroutine. Reports
// whether there was one.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	d.seq++
	fn := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// Pending reports whether a callback is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Duration returns the debounce duration.
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}
