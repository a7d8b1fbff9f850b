// Package clock samples wall-clock time into the snapshot the alarm
// evaluator compares against. Production code uses Real; tests pass a Func
// to control time.
package clock

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the host's local clock.
type Real struct{}

// Now returns time.Now in the local zone.
func (Real) Now() time.Time { return time.Now() }

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }

// Snapshot is one normalized clock reading. Weekday is 0 (Sunday) through
// 6 (Saturday).
type Snapshot struct {
	Hour        int
	Minute      int
	Weekday     int
	EpochMillis int64
}

// FromTime normalizes t in its own location.
func FromTime(t time.Time) Snapshot {
	return Snapshot{
		Hour:        t.Hour(),
		Minute:      t.Minute(),
		Weekday:     int(t.Weekday()),
		EpochMillis: t.UnixMilli(),
	}
}

// Sample reads c once.
func Sample(c Clock) Snapshot {
	return FromTime(c.Now().Local())
}

// MinuteKey identifies the calendar minute of the snapshot. Two snapshots
// share a key only if they fall in the same minute of the same day.
func (s Snapshot) MinuteKey() int64 {
	return floorDiv(s.EpochMillis, int64(time.Minute/time.Millisecond))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
