// Package domain defines the core types and interfaces for the alarm clock.
// All other packages depend on domain; domain depends on nothing.
package domain

import (
	"fmt"
	"time"
)

// ClockTime is a local time of day with minute precision. It carries no date.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// String formats the time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// RepeatType selects which days an alarm matches on.
type RepeatType string

const (
	RepeatOnce     RepeatType = "once"
	RepeatDaily    RepeatType = "daily"
	RepeatWeekdays RepeatType = "weekdays" // Monday through Friday
	RepeatCustom   RepeatType = "custom"   // explicit weekday set
)

// Repeat is the repeat rule of an alarm. Days is only consulted for
// RepeatCustom and holds weekday indices, 0 = Sunday through 6 = Saturday.
type Repeat struct {
	Type RepeatType `json:"type"`
	Days []int      `json:"days,omitempty"`
}

// HasDay reports whether weekday is part of a custom day set.
func (r Repeat) HasDay(weekday int) bool {
	for _, d := range r.Days {
		if d == weekday {
			return true
		}
	}
	return false
}

// EarlyNotification configures the "about to ring" warning.
type EarlyNotification struct {
	Enabled       bool `json:"enabled"`
	MinutesBefore int  `json:"minutesBefore"`
}

// EarlyNotificationMinutes lists the lead times an alarm may use.
var EarlyNotificationMinutes = []int{3, 5, 10}

// DefaultEarlyNotification is applied to alarms stored before early
// notifications existed.
var DefaultEarlyNotification = EarlyNotification{Enabled: true, MinutesBefore: 3}

// Alarm is a one-shot or recurring time-of-day trigger.
type Alarm struct {
	ID                string
	Time              ClockTime
	Enabled           bool
	Label             string
	Repeat            Repeat
	Sound             string
	CreatedAt         time.Time
	SnoozedUntil      time.Time // zero when not snoozed
	EarlyNotification EarlyNotification
}

// Snoozed reports whether the alarm is suppressed at the given instant.
func (a *Alarm) Snoozed(nowMillis int64) bool {
	return !a.SnoozedUntil.IsZero() && nowMillis < a.SnoozedUntil.UnixMilli()
}

// Clone returns a deep copy so callers can't mutate store-owned slices.
func (a *Alarm) Clone() *Alarm {
	c := *a
	if a.Repeat.Days != nil {
		c.Repeat.Days = append([]int(nil), a.Repeat.Days...)
	}
	return &c
}

// Validate checks field ranges. A custom repeat with no days is valid; it
// simply never matches.
func (a *Alarm) Validate() error {
	switch {
	case a.Time.Hour < 0 || a.Time.Hour > 23:
		return &ValidationError{Field: "time.hour", Reason: fmt.Sprintf("%d out of range 0-23", a.Time.Hour)}
	case a.Time.Minute < 0 || a.Time.Minute > 59:
		return &ValidationError{Field: "time.minute", Reason: fmt.Sprintf("%d out of range 0-59", a.Time.Minute)}
	}

	switch a.Repeat.Type {
	case RepeatOnce, RepeatDaily, RepeatWeekdays:
	case RepeatCustom:
		for _, d := range a.Repeat.Days {
			if d < 0 || d > 6 {
				return &ValidationError{Field: "repeat.days", Reason: fmt.Sprintf("weekday %d out of range 0-6", d)}
			}
		}
	default:
		return &ValidationError{Field: "repeat.type", Reason: fmt.Sprintf("unknown repeat type %q", a.Repeat.Type)}
	}

	if a.Sound != "" && !validAlarmSound(a.Sound) {
		return &ValidationError{Field: "sound", Reason: fmt.Sprintf("unknown alarm sound %q", a.Sound)}
	}

	if a.EarlyNotification.Enabled && !validLeadTime(a.EarlyNotification.MinutesBefore) {
		return &ValidationError{
			Field:  "earlyNotification.minutesBefore",
			Reason: fmt.Sprintf("%d not one of %v", a.EarlyNotification.MinutesBefore, EarlyNotificationMinutes),
		}
	}
	return nil
}

func validLeadTime(m int) bool {
	for _, v := range EarlyNotificationMinutes {
		if v == m {
			return true
		}
	}
	return false
}

func validAlarmSound(s string) bool {
	for _, v := range AlarmSounds {
		if v == s {
			return true
		}
	}
	return false
}
