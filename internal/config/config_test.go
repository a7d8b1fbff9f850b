package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/alarm"
	"github.com/hammamikhairi/ottoclock/internal/engine"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AlarmTick != time.Second || cfg.TimerTick != 100*time.Millisecond {
		t.Fatalf("ticks = %s/%s", cfg.AlarmTick, cfg.TimerTick)
	}
	if cfg.AlarmMode != alarm.ModeFull || cfg.Once != engine.OncePolicyDisable {
		t.Fatalf("mode=%s once=%s", cfg.AlarmMode, cfg.Once)
	}
	if cfg.Level != logger.LevelNormal || cfg.SnoozeMinutes != 5 || !cfg.Sound {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PushEnabled() {
		t.Fatal("push should be off without VAPID keys")
	}
}

func TestEnvThenFlags(t *testing.T) {
	t.Setenv(EnvMode, "basic")
	t.Setenv(EnvSnoozeMinutes, "9")
	t.Setenv(EnvAlarmTick, "500ms")
	t.Setenv(EnvSound, "false")

	cfg, err := Load("", []string{"-snooze", "15", "-verbose"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AlarmMode != alarm.ModeBasic {
		t.Fatalf("mode = %s, want basic from env", cfg.AlarmMode)
	}
	if cfg.SnoozeMinutes != 15 {
		t.Fatalf("snooze = %d, flag should override env", cfg.SnoozeMinutes)
	}
	if cfg.AlarmTick != 500*time.Millisecond || cfg.Sound {
		t.Fatalf("env not applied: tick=%s sound=%v", cfg.AlarmTick, cfg.Sound)
	}
	if cfg.Level != logger.LevelVerbose {
		t.Fatalf("level = %s, want verbose", cfg.Level)
	}
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "OTTOCLOCK_ONCE_POLICY=keep\nVAPID_PUBLIC_KEY=pub\nVAPID_PRIVATE_KEY=priv\nVAPID_SUBJECT=mailto:me@example.com\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// Registered with t.Setenv so the values are restored after the test.
	for _, k := range []string{EnvOncePolicy, EnvVAPIDPublicKey, EnvVAPIDPrivateKey, EnvVAPIDSubject} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Once != engine.OncePolicyKeep {
		t.Fatalf("once = %s, want keep", cfg.Once)
	}
	if !cfg.PushEnabled() {
		t.Fatal("push should be enabled from .env")
	}
}

func TestMissingEnvFileIsFine(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env"), nil); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"zero alarm tick", func(c *Config) { c.AlarmTick = 0 }},
		{"alarm tick over a minute", func(c *Config) { c.AlarmTick = 2 * time.Minute }},
		{"slow timer tick", func(c *Config) { c.TimerTick = 5 * time.Second }},
		{"snooze zero", func(c *Config) { c.SnoozeMinutes = 0 }},
		{"volume too loud", func(c *Config) { c.Volume = 1.5 }},
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }},
		{"unknown once policy", func(c *Config) { c.OncePolicy = "delete" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"partial vapid", func(c *Config) { c.VAPIDPublicKey = "pub" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestBadFlag(t *testing.T) {
	if _, err := Load("", []string{"-alarm-tick", "soon"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
