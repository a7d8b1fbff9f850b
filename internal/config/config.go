// Package config loads runtime settings from a .env file, OTTOCLOCK_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/ottoclock/internal/alarm"
	"github.com/hammamikhairi/ottoclock/internal/engine"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Environment variable names.
const (
	EnvLogLevel      = "OTTOCLOCK_LOG_LEVEL"
	EnvLogFile       = "OTTOCLOCK_LOG_FILE"
	EnvDBPath        = "OTTOCLOCK_DB"
	EnvAlarmTick     = "OTTOCLOCK_ALARM_TICK"
	EnvTimerTick     = "OTTOCLOCK_TIMER_TICK"
	EnvMode          = "OTTOCLOCK_MODE"
	EnvOncePolicy    = "OTTOCLOCK_ONCE_POLICY"
	EnvSnoozeMinutes = "OTTOCLOCK_SNOOZE_MINUTES"
	EnvSound         = "OTTOCLOCK_SOUND"
	EnvVolume        = "OTTOCLOCK_VOLUME"
	EnvImportFile    = "OTTOCLOCK_IMPORT"
	EnvSubscription  = "OTTOCLOCK_PUSH_SUBSCRIPTION"

	EnvVAPIDPublicKey  = "VAPID_PUBLIC_KEY"
	EnvVAPIDPrivateKey = "VAPID_PRIVATE_KEY"
	EnvVAPIDSubject    = "VAPID_SUBJECT"
)

// Config is the resolved runtime configuration.
type Config struct {
	LogLevel string
	LogFile  string // "stderr" logs to the console
	DBPath   string // "" keeps everything in memory

	AlarmTick     time.Duration
	TimerTick     time.Duration
	Mode          string
	OncePolicy    string
	SnoozeMinutes int

	Sound  bool
	Volume float64 // 0.0 to 1.0

	ImportFile string

	VAPIDPublicKey   string
	VAPIDPrivateKey  string
	VAPIDSubject     string
	SubscriptionFile string // browser PushSubscription JSON to register at startup

	// Parsed by Validate.
	Level     logger.Level
	AlarmMode alarm.Mode
	Once      engine.OncePolicy
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel:      "normal",
		LogFile:       ".ottoclock/ottoclock.log",
		DBPath:        ".ottoclock/ottoclock.db",
		AlarmTick:     1 * time.Second,
		TimerTick:     100 * time.Millisecond,
		Mode:          "full",
		OncePolicy:    "disable",
		SnoozeMinutes: 5,
		Sound:         true,
		Volume:        0.7,
	}
}

// Load builds a Config. envFile is loaded first if it exists (variables
// already set in the environment win), then environment variables, then
// args. The result is validated.
func Load(envFile string, args []string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLogFile, &c.LogFile)
	str(EnvDBPath, &c.DBPath)
	str(EnvMode, &c.Mode)
	str(EnvOncePolicy, &c.OncePolicy)
	str(EnvImportFile, &c.ImportFile)
	str(EnvSubscription, &c.SubscriptionFile)
	str(EnvVAPIDPublicKey, &c.VAPIDPublicKey)
	str(EnvVAPIDPrivateKey, &c.VAPIDPrivateKey)
	str(EnvVAPIDSubject, &c.VAPIDSubject)

	var err error
	if v := os.Getenv(EnvAlarmTick); v != "" {
		if c.AlarmTick, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvAlarmTick, err)
		}
	}
	if v := os.Getenv(EnvTimerTick); v != "" {
		if c.TimerTick, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvTimerTick, err)
		}
	}
	if v := os.Getenv(EnvSnoozeMinutes); v != "" {
		if c.SnoozeMinutes, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvSnoozeMinutes, err)
		}
	}
	if v := os.Getenv(EnvSound); v != "" {
		if c.Sound, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvSound, err)
		}
	}
	if v := os.Getenv(EnvVolume); v != "" {
		if c.Volume, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvVolume, err)
		}
	}
	return nil
}

func (c *Config) applyFlags(args []string) error {
	fs := flag.NewFlagSet("ottoclock", flag.ContinueOnError)

	verbose := fs.Bool("verbose", false, "enable verbose/debug logging")
	quiet := fs.Bool("quiet", false, "disable all logging")
	noSound := fs.Bool("no-sound", false, "disable alarm and timer sounds")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: off, normal or verbose")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "file to write logs to (use \"stderr\" to log to console)")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database path (empty keeps data in memory)")
	fs.DurationVar(&c.AlarmTick, "alarm-tick", c.AlarmTick, "how often alarms are checked")
	fs.DurationVar(&c.TimerTick, "timer-tick", c.TimerTick, "how often running timers are updated")
	fs.StringVar(&c.Mode, "mode", c.Mode, "alarm evaluation: full (snooze, early suppresses ring) or basic")
	fs.StringVar(&c.OncePolicy, "once", c.OncePolicy, "one-time alarms after ringing: disable or keep")
	fs.IntVar(&c.SnoozeMinutes, "snooze", c.SnoozeMinutes, "default snooze length in minutes")
	fs.Float64Var(&c.Volume, "volume", c.Volume, "playback volume from 0 to 1")
	fs.StringVar(&c.ImportFile, "import", c.ImportFile, "activity schedule file to import as daily alarms")
	fs.StringVar(&c.SubscriptionFile, "push-subscription", c.SubscriptionFile, "browser push subscription JSON to register")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if *verbose {
		c.LogLevel = "verbose"
	}
	if *quiet {
		c.LogLevel = "off"
	}
	if *noSound {
		c.Sound = false
	}
	return nil
}

// Validate checks ranges and parses the enumerated settings.
func (c *Config) Validate() error {
	var err error
	if c.Level, err = logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.AlarmMode, err = alarm.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Once, err = engine.ParseOncePolicy(c.OncePolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch {
	case c.AlarmTick <= 0 || c.AlarmTick > time.Minute:
		return fmt.Errorf("%w: alarm tick %s must be in (0, 1m]", ErrInvalidConfig, c.AlarmTick)
	case c.TimerTick <= 0 || c.TimerTick > time.Second:
		return fmt.Errorf("%w: timer tick %s must be in (0, 1s]", ErrInvalidConfig, c.TimerTick)
	case c.SnoozeMinutes < 1 || c.SnoozeMinutes > 60:
		return fmt.Errorf("%w: snooze %d must be 1-60 minutes", ErrInvalidConfig, c.SnoozeMinutes)
	case c.Volume < 0 || c.Volume > 1:
		return fmt.Errorf("%w: volume %.2f must be between 0 and 1", ErrInvalidConfig, c.Volume)
	}

	// Either all VAPID settings or none.
	set := 0
	for _, v := range []string{c.VAPIDPublicKey, c.VAPIDPrivateKey, c.VAPIDSubject} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("%w: %s, %s and %s must be set together", ErrInvalidConfig, EnvVAPIDPublicKey, EnvVAPIDPrivateKey, EnvVAPIDSubject)
	}
	return nil
}

// PushEnabled reports whether web push is configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != "" && c.VAPIDSubject != ""
}
