package performance

import (
	"sync"
	"time"
)

type pendingCall struct {
	timer *time.Timer
	fn    func()
}

// Debouncer delays keyed calls. A new call for a key replaces the pending
// one, so only the last scheduled function runs.
type Debouncer struct {
	mutex    sync.Mutex
	pending  map[string]*pendingCall
	duration time.Duration
}

// NewDebouncer creates a new debouncer with the specified duration
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		pending:  make(map[string]*pendingCall),
		duration: duration,
	}
}

// Duration returns the configured delay
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}

// Debounce runs fn after the delay unless it is replaced, cancelled or
// flushed first
func (d *Debouncer) Debounce(key string, fn func()) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if p, exists := d.pending[key]; exists {
		p.timer.Stop()
	}

	call := &pendingCall{fn: fn}
	call.timer = time.AfterFunc(d.duration, func() {
		d.mutex.Lock()
		// a flush or a newer call may have claimed this key already
		if d.pending[key] != call {
			d.mutex.Unlock()
			return
		}
		delete(d.pending, key)
		d.mutex.Unlock()
		fn()
	})
	d.pending[key] = call
}

// Cancel drops a pending call without running it
func (d *Debouncer) Cancel(key string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if p, exists := d.pending[key]; exists {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

// Flush runs the pending call for key now, on the calling goroutine. It
// reports whether there was one.
func (d *Debouncer) Flush(key string) bool {
	d.mutex.Lock()
	p, exists := d.pending[key]
	if exists {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.mutex.Unlock()

	if !exists {
		return false
	}
	p.fn()
	return true
}

// FlushAll runs every pending call
func (d *Debouncer) FlushAll() {
	d.mutex.Lock()
	calls := make([]*pendingCall, 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		calls = append(calls, p)
		delete(d.pending, key)
	}
	d.mutex.Unlock()

	for _, p := range calls {
		p.fn()
	}
}

// Pending reports whether a call is scheduled for key
func (d *Debouncer) Pending(key string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, exists := d.pending[key]
	return exists
}

// Clear cancels all pending calls
func (d *Debouncer) Clear() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}
