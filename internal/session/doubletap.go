package session

import (
	"sync"
	"time"
)

// DoubleTapWindow is the longest gap between two taps that still cancels.
const DoubleTapWindow = 600 * time.Millisecond

// DoubleTap detects two triggers within a window. A single tap arms it; a
// second tap inside the window fires and disarms.
type DoubleTap struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   time.Time
}

// NewDoubleTap returns a detector with the given window (DoubleTapWindow when
// zero).
func NewDoubleTap(window time.Duration) *DoubleTap {
	if window <= 0 {
		window = DoubleTapWindow
	}
	return &DoubleTap{window: window, now: time.Now}
}

// Tap records a trigger and reports whether it completes a double tap.
func (d *DoubleTap) Tap() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.window {
		d.last = time.Time{}
		return true
	}
	d.last = now
	return false
}

// Reset disarms the detector.
func (d *DoubleTap) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = time.Time{}
}
