package domain

import "time"

// Timer is a single countdown interval.
type Timer struct {
	ID        string
	Name      string
	Duration  time.Duration // whole seconds, at least one
	Remaining time.Duration // recomputed from StartedAt while running
	Status    TimerStatus
	Sound     string
	CreatedAt time.Time
	StartedAt time.Time // start of the current running interval, shifted on resume
	PausedAt  time.Time // zero unless paused
}

// Clone returns a copy of the timer.
func (t *Timer) Clone() *Timer {
	c := *t
	return &c
}

// Validate checks the timer's duration.
func (t *Timer) Validate() error {
	if t.Duration < time.Second {
		return &ValidationError{Field: "duration", Reason: "must be at least 1 second"}
	}
	if t.Duration%time.Second != 0 {
		return &ValidationError{Field: "duration", Reason: "must be a whole number of seconds"}
	}
	return nil
}

// TimerStatus represents the lifecycle state of a timer.
type TimerStatus int

const (
	TimerIdle TimerStatus = iota
	TimerRunning
	TimerPaused
	TimerFinished
)

// String returns a human-readable timer status.
func (t TimerStatus) String() string {
	switch t {
	case TimerIdle:
		return "idle"
	case TimerRunning:
		return "running"
	case TimerPaused:
		return "paused"
	case TimerFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// TimerPreset is a commonly used countdown.
type TimerPreset struct {
	Name     string
	Duration time.Duration
}

// TimerPresets are offered by the "timer preset" command.
var TimerPresets = []TimerPreset{
	{Name: "Pomodoro", Duration: 25 * time.Minute},
	{Name: "Short break", Duration: 5 * time.Minute},
	{Name: "Long break", Duration: 15 * time.Minute},
	{Name: "10 minutes", Duration: 10 * time.Minute},
	{Name: "30 minutes", Duration: 30 * time.Minute},
	{Name: "1 hour", Duration: time.Hour},
}
