// Package alarm decides when alarms ring and drives that decision from a
// once-per-second scheduler loop.
package alarm

import (
	"time"

	"github.com/hammamikhairi/ottoclock/internal/clock"
	"github.com/hammamikhairi/ottoclock/internal/domain"
)

// ShouldRing reports whether the alarm rings during the snapshot's minute.
// It is pure: repeated calls within a minute keep returning true, so the
// caller is responsible for firing once.
func ShouldRing(a *domain.Alarm, now clock.Snapshot) bool {
	if !a.Enabled {
		return false
	}
	if a.Snoozed(now.EpochMillis) {
		return false
	}
	if a.Time.Hour != now.Hour || a.Time.Minute != now.Minute {
		return false
	}
	return matchesDay(a.Repeat, now.Weekday)
}

// ShouldSendEarlyNotification reports whether the snapshot's minute is the
// alarm's early-warning minute. The repeat rule is checked against the
// current weekday even when the warning falls on the previous day.
func ShouldSendEarlyNotification(a *domain.Alarm, now clock.Snapshot) bool {
	if !a.Enabled || !a.EarlyNotification.Enabled {
		return false
	}
	if a.Snoozed(now.EpochMillis) {
		return false
	}
	early := EarlyTime(a)
	if early.Hour != now.Hour || early.Minute != now.Minute {
		return false
	}
	return matchesDay(a.Repeat, now.Weekday)
}

// earlyRef is an arbitrary UTC date. Only the hour and minute of results
// derived from it are used; UTC keeps the subtraction free of DST jumps.
var earlyRef = time.Date(2000, time.January, 2, 0, 0, 0, 0, time.UTC)

// EarlyTime returns the alarm time minus the early-notification lead,
// rolling back across midnight (00:02 minus 5 minutes is 23:57).
func EarlyTime(a *domain.Alarm) domain.ClockTime {
	target := earlyRef.Add(time.Duration(a.Time.Hour)*time.Hour + time.Duration(a.Time.Minute)*time.Minute)
	early := target.Add(-time.Duration(a.EarlyNotification.MinutesBefore) * time.Minute)
	return domain.ClockTime{Hour: early.Hour(), Minute: early.Minute()}
}

func matchesDay(r domain.Repeat, weekday int) bool {
	switch r.Type {
	case domain.RepeatOnce, domain.RepeatDaily:
		return true
	case domain.RepeatWeekdays:
		return weekday >= 1 && weekday <= 5
	case domain.RepeatCustom:
		return r.HasDay(weekday)
	default:
		return false
	}
}

// NextRing returns the next instant after from at which the alarm will
// ring, or the zero time if it never will. A snooze pushes the result past
// SnoozedUntil.
func NextRing(a *domain.Alarm, from time.Time) time.Time {
	if !a.Enabled {
		return time.Time{}
	}
	// Eight days covers every weekday plus today's already-passed slot.
	for i := 0; i <= 7; i++ {
		at := time.Date(from.Year(), from.Month(), from.Day()+i, a.Time.Hour, a.Time.Minute, 0, 0, from.Location())
		if !at.After(from) {
			continue
		}
		if !a.SnoozedUntil.IsZero() && at.Before(a.SnoozedUntil) {
			continue
		}
		if matchesDay(a.Repeat, int(at.Weekday())) {
			return at
		}
	}
	return time.Time{}
}
