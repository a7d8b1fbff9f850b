package domain

import "context"

// AlarmSource is the read side of the alarm collection. Implementations
// return alarms in insertion order; callers own the returned copies.
type AlarmSource interface {
	ListAlarms(ctx context.Context) ([]*Alarm, error)
}

// AlarmStore owns the alarm collection.
type AlarmStore interface {
	AlarmSource
	GetAlarm(ctx context.Context, id string) (*Alarm, error)
	AddAlarm(ctx context.Context, alarm *Alarm) (*Alarm, error)
	UpdateAlarm(ctx context.Context, id string, fn func(*Alarm)) (*Alarm, error)
	DeleteAlarm(ctx context.Context, id string) error
	ClearAlarms(ctx context.Context) error
}

// TimerSource is what the timer runner needs: read the collection and write
// computed progress back. UpdateTimer returns ErrNotFound for stale ids.
type TimerSource interface {
	ListTimers(ctx context.Context) ([]*Timer, error)
	UpdateTimer(ctx context.Context, id string, fn func(*Timer)) (*Timer, error)
}

// TimerStore owns the timer collection.
type TimerStore interface {
	TimerSource
	GetTimer(ctx context.Context, id string) (*Timer, error)
	AddTimer(ctx context.Context, timer *Timer) (*Timer, error)
	DeleteTimer(ctx context.Context, id string) error
}

// AlarmEvents receives events from the alarm scheduler. Calls are made
// synchronously from the scheduler goroutine and should return quickly.
type AlarmEvents interface {
	AlarmTriggered(ctx context.Context, alarm *Alarm)
	EarlyNotification(ctx context.Context, alarm *Alarm)
}

// TimerEvents receives events from the timer runner.
type TimerEvents interface {
	TimerFinished(ctx context.Context, id string)
}

// Notifier delivers messages to the user. Implementations can write to
// the terminal or push to a browser.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}

// SoundPlayer plays logical sound ids. Play replaces whatever is playing.
// SetVolume takes effect from the next Play.
type SoundPlayer interface {
	Play(sound string) error
	Stop()
	SetVolume(volume float64)
}

// Settings are user preferences changed at runtime.
type Settings struct {
	Volume float64 `json:"volume"` // 0.0 to 1.0
}

// SettingsStore keeps Settings between runs. LoadSettings fills in only
// the fields that were saved, leaving the rest of defaults as given.
type SettingsStore interface {
	LoadSettings(ctx context.Context, defaults Settings) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// PushSubscription is a browser push endpoint with its encryption keys.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// SubscriptionStore keeps the push endpoints that receive notifications.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]PushSubscription, error)
	AddSubscription(ctx context.Context, sub PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
}
