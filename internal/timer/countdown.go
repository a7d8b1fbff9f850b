// Package timer implements the countdown state machine and the background
// runner that recomputes remaining time and fires finished events.
package timer

import (
	"fmt"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/domain"
)

// Start moves the timer to running. Resuming from pause shifts StartedAt
// forward by the time spent paused so elapsed-time math keeps working.
// Remaining is left to the runner.
func Start(t *domain.Timer, now time.Time) {
	if t.Status == domain.TimerPaused && !t.StartedAt.IsZero() && !t.PausedAt.IsZero() {
		t.StartedAt = t.StartedAt.Add(now.Sub(t.PausedAt))
	} else {
		t.StartedAt = now
	}
	t.PausedAt = time.Time{}
	t.Status = domain.TimerRunning
}

// Pause freezes a running timer. StartedAt is kept for the resume.
func Pause(t *domain.Timer, now time.Time) error {
	if t.Status != domain.TimerRunning {
		return fmt.Errorf("pausing timer %s (%s): %w", t.ID, t.Status, domain.ErrNotRunning)
	}
	t.Remaining = Remaining(t, now)
	t.PausedAt = now
	t.Status = domain.TimerPaused
	return nil
}

// Reset returns the timer to idle with its full duration.
func Reset(t *domain.Timer) {
	t.Status = domain.TimerIdle
	t.Remaining = t.Duration
	t.StartedAt = time.Time{}
	t.PausedAt = time.Time{}
}

// Finish marks the timer as done.
func Finish(t *domain.Timer) {
	t.Status = domain.TimerFinished
	t.Remaining = 0
}

// Remaining returns the time left at now. Only a running timer is
// recomputed from StartedAt; any other state reports its frozen value.
func Remaining(t *domain.Timer, now time.Time) time.Duration {
	if t.Status != domain.TimerRunning || t.StartedAt.IsZero() {
		return t.Remaining
	}
	left := t.Duration - now.Sub(t.StartedAt)
	if left < 0 {
		return 0
	}
	if left > t.Duration {
		return t.Duration
	}
	return left
}

// Progress returns how much of the timer has elapsed, 0 to 100.
func Progress(t *domain.Timer) float64 {
	if t.Duration <= 0 {
		return 0
	}
	p := float64(t.Duration-t.Remaining) / float64(t.Duration) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// FormatClock renders a duration as H:MM:SS, or M:SS under an hour.
// Fractions of a second are dropped.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// DurationText renders a duration for humans, e.g. "1 hr 30 min".
func DurationText(d time.Duration) string {
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%d hr %d min", h, m)
	case h > 0:
		return fmt.Sprintf("%d hr", h)
	case m > 0 && s > 0:
		return fmt.Sprintf("%d min %d sec", m, s)
	case m > 0:
		return fmt.Sprintf("%d min", m)
	default:
		return fmt.Sprintf("%d sec", s)
	}
}
