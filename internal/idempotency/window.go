// Package idempotency suppresses repeated deliveries of the same event id
// within a fixed time window. Chat platforms redeliver webhook events on slow
// acks, so the receiver must treat event ids as at-least-once.
package idempotency

import (
	"strings"
	"sync"
	"time"
)

// DefaultWindow matches the Slack Events API redelivery horizon.
const DefaultWindow = 300 * time.Second

// WindowOptions configures a Window.
type WindowOptions struct {
	// Window is how long an event id stays suppressed. Zero means
	// DefaultWindow.
	Window time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Window is a time-bounded set of recently seen event ids. Safe for
// concurrent use; the check-and-mark section is atomic so two racing
// deliveries of the same id cannot both pass. State is in-memory only and
// lost on restart.
type Window struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	nowFn  func() time.Time
}

// NewWindow creates a Window.
func NewWindow(opts WindowOptions) *Window {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Window{
		seen:   make(map[string]time.Time),
		window: window,
		nowFn:  nowFn,
	}
}

// Seen reports whether eventID was already recorded within the window and, if
// not, records it now. Expired entries are swept on every call, bounding
// memory to live traffic. Empty ids are never recorded and never duplicates;
// rejecting events without an id is the caller's job.
func (w *Window) Seen(eventID string) bool {
	if w == nil {
		return false
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false
	}

	now := w.nowFn()
	cutoff := now.Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	for id, firstSeen := range w.seen {
		if firstSeen.Before(cutoff) {
			delete(w.seen, id)
		}
	}
	if _, ok := w.seen[eventID]; ok {
		return true
	}
	w.seen[eventID] = now
	return false
}

// Forget removes eventID from the window so a later delivery passes Seen
// again. Callers use it when an event was marked but could not actually be
// processed, making redelivery the retry path instead of a silent loss.
func (w *Window) Forget(eventID string) {
	if w == nil {
		return
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.seen, eventID)
}

// Len returns the number of resident entries. Intended for tests and
// operational logging.
func (w *Window) Len() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
