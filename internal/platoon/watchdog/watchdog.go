// Package watchdog implements the follower-side leader-liveness
// watchdog of spec.md section 4.9: a periodic poll that detects a
// stale leader TCP link and emits a one-shot LeaderTimeout event.
//
// The poll loop is modeled on malbeclabs-doublezero's liveness
// Scheduler.Run: a ticker goroutine that compares a last-seen
// timestamp against a deadline and fires a callback, simplified here
// to a single-purpose boolean latch instead of a generic scheduler.
package watchdog

import (
	"sync"
	"time"
)

// Watchdog tracks the age of the last fresh leader message and
// decides, on each poll, whether a LeaderTimeout should fire.
type Watchdog struct {
	mu             sync.Mutex
	lastRx         time.Time
	timeoutEmitted bool
	muted          bool
	timeout        time.Duration
	now            func() time.Time
}

// New constructs a Watchdog with the given staleness timeout. now, if
// nil, defaults to time.Now; tests may override it for determinism.
func New(timeout time.Duration, now func() time.Time) *Watchdog {
	if now == nil {
		now = time.Now
	}
	return &Watchdog{timeout: timeout, now: now, lastRx: now()}
}

// NoteLeaderMessage records a fresh leader TCP message, resetting the
// staleness window and clearing any prior emission latch.
func (w *Watchdog) NoteLeaderMessage() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRx = w.now()
	w.timeoutEmitted = false
}

// SetMuted mutes or unmutes the watchdog; it is muted while the
// follower is in Platooning, since the leader may legitimately be
// silent during formation (I6).
func (w *Watchdog) SetMuted(muted bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.muted = muted
}

// Poll checks whether a LeaderTimeout should fire right now. It
// returns true at most once per stale period (I7): once emitted, it
// will not fire again until NoteLeaderMessage resets the window.
func (w *Watchdog) Poll() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.muted || w.timeoutEmitted {
		return false
	}
	if w.now().Sub(w.lastRx) <= w.timeout {
		return false
	}
	w.timeoutEmitted = true
	return true
}

// Run polls every period until stop is closed, pushing to emit
// whenever Poll reports a fresh timeout. Run returns when stop
// closes; it never blocks the caller beyond that.
func (w *Watchdog) Run(stop <-chan struct{}, period time.Duration, emit func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if w.Poll() {
				emit()
			}
		}
	}
}
