// Package ratelimit provides the per-source sliding-window limiter shared by
// the scanner and harvester of one source.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
)

// defaultWindow is the budget window every source profile uses.
const defaultWindow = time.Minute

// SlidingWindow admits at most limit calls per window. Admission times come
// from time.Now, whose monotonic reading makes the window immune to
// wall-clock jumps. A saturated window blocks the caller until a slot frees,
// unless the required wait exceeds patience, in which case the call fails
// with a rate-limit error carrying the wait as a retry hint.
type SlidingWindow struct {
	name     string
	limit    int
	window   time.Duration
	patience time.Duration

	mu     sync.Mutex
	admits []time.Time

	// now is injectable for tests; production uses time.Now.
	now func() time.Time
}

// NewSlidingWindow builds a limiter. limit <= 0 disables limiting entirely.
// window <= 0 uses the one-minute default.
func NewSlidingWindow(name string, limit int, window, patience time.Duration) *SlidingWindow {
	if window <= 0 {
		window = defaultWindow
	}
	return &SlidingWindow{
		name:     name,
		limit:    limit,
		window:   window,
		patience: patience,
		now:      time.Now,
	}
}

// Acquire claims one slot, blocking while saturation is shorter than
// patience. It returns a Cancelled error when ctx ends first and a
// SourceRateLimited error carrying the retry hint when the wait would exceed
// patience.
func (w *SlidingWindow) Acquire(ctx context.Context) error {
	if w.limit <= 0 {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return appErrors.Wrap(err, appErrors.CodeCancelled, "rate limiter wait cancelled")
		}

		wait, ok := w.tryAdmit()
		if ok {
			return nil
		}
		if wait > w.patience {
			return appErrors.SourceRateLimited(
				fmt.Sprintf("rate budget for %s exhausted", w.name), wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return appErrors.Wrap(ctx.Err(), appErrors.CodeCancelled, "rate limiter wait cancelled")
		case <-timer.C:
		}
	}
}

// Available reports how many slots the window has right now.
func (w *SlidingWindow) Available() int {
	if w.limit <= 0 {
		return int(^uint(0) >> 1)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return w.limit - len(w.admits)
}

// tryAdmit either records an admission or reports how long until the oldest
// admission leaves the window.
func (w *SlidingWindow) tryAdmit() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.admits) < w.limit {
		w.admits = append(w.admits, now)
		return 0, true
	}
	return w.admits[0].Add(w.window).Sub(now), false
}

// prune drops admissions older than the window. Callers hold the lock.
func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.admits) && !w.admits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.admits = append(w.admits[:0], w.admits[i:]...)
	}
}
