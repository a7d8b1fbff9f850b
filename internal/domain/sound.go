package domain

// Logical sound identifiers. Playback decides what each one sounds like.
const (
	SoundDefault = "alarm-default"
	SoundGentle  = "alarm-gentle"
	SoundClassic = "alarm-classic"
	SoundBell    = "sound-bell"
)

// AlarmSounds are the ids an alarm may be configured with.
var AlarmSounds = []string{SoundDefault, SoundGentle, SoundClassic}

// TimerSound is used by every timer.
const TimerSound = SoundBell

// EarlyNotificationSound is played for early warnings.
const EarlyNotificationSound = SoundGentle
