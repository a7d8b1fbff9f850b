package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "ottoclock.db"), log)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteAlarmRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	snooze := time.UnixMilli(1_700_000_300_000)
	alarms := []*domain.Alarm{
		{
			ID:                "b",
			Time:              domain.ClockTime{Hour: 6, Minute: 45},
			Enabled:           true,
			Label:             "run",
			Repeat:            domain.Repeat{Type: domain.RepeatCustom, Days: []int{1, 3, 5}},
			Sound:             domain.SoundGentle,
			CreatedAt:         time.UnixMilli(1_700_000_000_000),
			SnoozedUntil:      snooze,
			EarlyNotification: domain.EarlyNotification{Enabled: false, MinutesBefore: 10},
		},
		{
			ID:      "a",
			Time:    domain.ClockTime{Hour: 22, Minute: 0},
			Repeat:  domain.Repeat{Type: domain.RepeatOnce},
			Sound:   domain.SoundClassic,
			Enabled: false,
		},
	}
	if err := db.SaveAlarms(ctx, alarms); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.LoadAlarms(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("order not preserved: %+v", got)
	}
	b := got[0]
	if !b.SnoozedUntil.Equal(snooze) {
		t.Fatalf("SnoozedUntil = %v, want %v", b.SnoozedUntil, snooze)
	}
	if b.EarlyNotification != (domain.EarlyNotification{Enabled: false, MinutesBefore: 10}) {
		t.Fatalf("early notification = %+v", b.EarlyNotification)
	}
	if len(b.Repeat.Days) != 3 || b.Label != "run" || b.Sound != domain.SoundGentle {
		t.Fatalf("fields lost: %+v", b)
	}
	if !got[1].SnoozedUntil.IsZero() || !got[1].CreatedAt.IsZero() {
		t.Fatalf("zero times should stay zero: %+v", got[1])
	}

	// Saving a shorter list replaces the old one.
	if err := db.SaveAlarms(ctx, alarms[1:]); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ = db.LoadAlarms(ctx)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected only alarm a, got %+v", got)
	}
}

func TestSQLiteDefaultsMissingEarlyNotification(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.db.Exec(`INSERT INTO alarms (id, position, data) VALUES (?, ?, ?)`,
		"old", 0, `{"id":"old","time":{"hour":7,"minute":0},"enabled":true,"repeat":{"type":"daily"}}`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = db.db.Exec(`INSERT INTO alarms (id, position, data) VALUES (?, ?, ?)`, "junk", 1, `{not json`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.LoadAlarms(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the undecodable row to be skipped, got %d alarms", len(got))
	}
	if got[0].EarlyNotification != domain.DefaultEarlyNotification {
		t.Fatalf("early notification = %+v, want default", got[0].EarlyNotification)
	}
	if got[0].Sound != domain.SoundDefault {
		t.Fatalf("sound = %q, want default", got[0].Sound)
	}
}

func TestSQLiteTimersReloadIdle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	running := &domain.Timer{
		ID:        "t1",
		Name:      "Pomodoro",
		Duration:  25 * time.Minute,
		Remaining: 3 * time.Minute,
		Status:    domain.TimerRunning,
		Sound:     domain.TimerSound,
		StartedAt: time.Now().Add(-22 * time.Minute),
	}
	if err := db.SaveTimers(ctx, []*domain.Timer{running}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A row written by an older build that kept runtime state and a
	// different sound.
	_, err := db.db.Exec(`INSERT INTO timers (id, position, data) VALUES (?, ?, ?)`,
		"t2", 1, `{"id":"t2","name":"Tea","duration":180,"sound":"alarm-classic","status":"paused","remaining":12,"pausedAt":1700000000000}`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.LoadTimers(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 timers, got %d", len(got))
	}
	for _, tm := range got {
		if tm.Status != domain.TimerIdle || tm.Remaining != tm.Duration {
			t.Errorf("timer %s not idle/full: status=%s remaining=%s", tm.ID, tm.Status, tm.Remaining)
		}
		if !tm.StartedAt.IsZero() || !tm.PausedAt.IsZero() {
			t.Errorf("timer %s kept timestamps", tm.ID)
		}
		if tm.Sound != domain.TimerSound {
			t.Errorf("timer %s sound = %q, want bell", tm.ID, tm.Sound)
		}
	}
	if got[1].Duration != 3*time.Minute {
		t.Fatalf("duration = %s, want 3m", got[1].Duration)
	}
}

func TestSQLitePersistsThroughMemoryStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := newStore(WithPersister(db))

	a, err := store.AddAlarm(ctx, alarmAt(7, 30))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.AddTimer(ctx, &domain.Timer{Name: "Tea", Duration: time.Minute}); err != nil {
		t.Fatalf("add timer: %v", err)
	}

	alarms, _ := db.LoadAlarms(ctx)
	timers, _ := db.LoadTimers(ctx)
	if len(alarms) != 1 || alarms[0].ID != a.ID || len(timers) != 1 {
		t.Fatalf("expected the store's writes in the database, got %d alarms, %d timers", len(alarms), len(timers))
	}
}

func TestSQLiteSubscriptions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sub := domain.PushSubscription{Endpoint: "https://push.example/1", P256dh: "key", Auth: "auth"}
	if err := db.AddSubscription(ctx, sub); err != nil {
		t.Fatalf("add: %v", err)
	}
	sub.Auth = "rotated"
	if err := db.AddSubscription(ctx, sub); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	subs, err := db.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].Auth != "rotated" {
		t.Fatalf("expected one refreshed subscription, got %+v", subs)
	}

	if err := db.AddSubscription(ctx, domain.PushSubscription{Endpoint: "x"}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	if err := db.DeleteSubscription(ctx, sub.Endpoint); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db.DeleteSubscription(ctx, sub.Endpoint); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteSettings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	defaults := domain.Settings{Volume: 0.7}

	got, err := db.LoadSettings(ctx, defaults)
	if err != nil || got != defaults {
		t.Fatalf("nothing saved: got %+v, %v; want defaults", got, err)
	}

	if err := db.SaveSettings(ctx, domain.Settings{Volume: 0.3}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveSettings(ctx, domain.Settings{Volume: 0.4}); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, err = db.LoadSettings(ctx, defaults)
	if err != nil || got.Volume != 0.4 {
		t.Fatalf("got %+v, %v; want volume 0.4", got, err)
	}

	// A document without the field keeps the default.
	if _, err := db.db.Exec(`UPDATE settings SET data = '{}'`); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = db.LoadSettings(ctx, defaults)
	if err != nil || got != defaults {
		t.Fatalf("empty document: got %+v, %v; want defaults", got, err)
	}
}
