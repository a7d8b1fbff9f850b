package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/clock"
	"github.com/hammamikhairi/ottoclock/internal/command"
	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
	"github.com/hammamikhairi/ottoclock/internal/storage"
)

// --- Mocks ---

type mockPlayer struct {
	mu     sync.Mutex
	played []string
	stops  int
	volume float64
}

func (p *mockPlayer) Play(sound string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, sound)
	return nil
}

func (p *mockPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *mockPlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *mockPlayer) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.played) == 0 {
		return ""
	}
	return p.played[len(p.played)-1]
}

type mockNotifier struct {
	mu     sync.Mutex
	normal []string
	urgent []string
}

func (n *mockNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.normal = append(n.normal, msg)
	return nil
}

func (n *mockNotifier) NotifyUrgent(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urgent = append(n.urgent, msg)
	return nil
}

type mockSettings struct {
	mu    sync.Mutex
	saved []domain.Settings
	err   error
}

func (s *mockSettings) LoadSettings(_ context.Context, defaults domain.Settings) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return defaults, nil
	}
	return s.saved[len(s.saved)-1], nil
}

func (s *mockSettings) SaveSettings(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, settings)
	return nil
}

type mockWaker struct {
	mu    sync.Mutex
	wakes int
}

func (w *mockWaker) Wake() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wakes++
}

// --- Helpers ---

var t0 = time.Date(2024, time.January, 3, 7, 0, 0, 0, time.UTC)

type fixture struct {
	eng      *Engine
	store    *storage.MemoryStore
	player   *mockPlayer
	notifier *mockNotifier
	waker    *mockWaker
	now      *time.Time
}

func setup(t *testing.T, opts ...Option) (*fixture, context.Context) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	now := t0
	f := &fixture{
		store:    storage.NewMemoryStore(log, storage.WithNow(func() time.Time { return now })),
		player:   &mockPlayer{},
		notifier: &mockNotifier{},
		waker:    &mockWaker{},
		now:      &now,
	}
	opts = append([]Option{WithClock(clock.Func(func() time.Time { return now }))}, opts...)
	f.eng = New(f.store, f.player, f.notifier, log, opts...)
	f.eng.SetWaker(f.waker)
	return f, context.Background()
}

func (f *fixture) addAlarm(t *testing.T, a *domain.Alarm) *domain.Alarm {
	t.Helper()
	added, err := f.eng.AddAlarm(context.Background(), a)
	if err != nil {
		t.Fatalf("adding alarm: %v", err)
	}
	return added
}

func wakeUp() *domain.Alarm {
	return &domain.Alarm{
		Time:    domain.ClockTime{Hour: 7, Minute: 0},
		Enabled: true,
		Label:   "wake up",
		Repeat:  domain.Repeat{Type: domain.RepeatDaily},
		Sound:   domain.SoundClassic,
	}
}

// --- Tests ---

func TestAlarmTriggeredRingsAndNotifies(t *testing.T) {
	f, ctx := setup(t)
	a := f.addAlarm(t, wakeUp())

	f.eng.AlarmTriggered(ctx, a)
	f.eng.Close()

	if f.player.last() != domain.SoundClassic {
		t.Fatalf("played %v, want the alarm's sound", f.player.played)
	}
	if len(f.notifier.urgent) != 1 || f.notifier.urgent[0] != "Alarm 07:00: wake up" {
		t.Fatalf("urgent notifications %q", f.notifier.urgent)
	}
	alerts := f.eng.Alerts()
	if len(alerts) != 1 || alerts[0].Kind != AlertRing || alerts[0].ID != a.ID {
		t.Fatalf("alerts %+v", alerts)
	}
}

func TestOncePolicy(t *testing.T) {
	tests := []struct {
		name        string
		policy      OncePolicy
		repeat      domain.RepeatType
		wantEnabled bool
	}{
		{"once disabled after ring", OncePolicyDisable, domain.RepeatOnce, false},
		{"once kept", OncePolicyKeep, domain.RepeatOnce, true},
		{"daily untouched", OncePolicyDisable, domain.RepeatDaily, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ctx := setup(t, WithOncePolicy(tt.policy))
			a := wakeUp()
			a.Repeat = domain.Repeat{Type: tt.repeat}
			a = f.addAlarm(t, a)

			f.eng.AlarmTriggered(ctx, a)
			f.eng.Close()

			got, err := f.store.GetAlarm(ctx, a.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Enabled != tt.wantEnabled {
				t.Fatalf("enabled = %v, want %v", got.Enabled, tt.wantEnabled)
			}
		})
	}
}

func TestEarlyNotificationDoesNotInterruptRinging(t *testing.T) {
	f, ctx := setup(t)
	a := f.addAlarm(t, wakeUp())
	b := wakeUp()
	b.Time = domain.ClockTime{Hour: 7, Minute: 3}
	b.EarlyNotification = domain.EarlyNotification{Enabled: true, MinutesBefore: 3}
	b = f.addAlarm(t, b)

	// Quiet: the early warning plays the gentle sound.
	f.eng.EarlyNotification(ctx, b)
	if f.player.last() != domain.SoundGentle {
		t.Fatalf("expected gentle sound, played %v", f.player.played)
	}
	f.eng.Close()
	f.eng.Dismiss(ctx)

	// Ringing: the warning is shown but the alarm keeps sounding.
	f.eng.AlarmTriggered(ctx, a)
	f.eng.EarlyNotification(ctx, b)
	f.eng.Close()
	if f.player.last() != domain.SoundClassic {
		t.Fatalf("early warning replaced the ring: %v", f.player.played)
	}
	if len(f.notifier.normal) != 2 || f.notifier.normal[1] != "Alarm 07:03 in 3 minutes: wake up" {
		t.Fatalf("normal notifications %q", f.notifier.normal)
	}
	if len(f.eng.Alerts()) != 2 {
		t.Fatalf("alerts %+v", f.eng.Alerts())
	}
}

func TestRingReplacesEarlyAlert(t *testing.T) {
	f, ctx := setup(t)
	a := wakeUp()
	a.EarlyNotification = domain.EarlyNotification{Enabled: true, MinutesBefore: 5}
	a = f.addAlarm(t, a)

	f.eng.EarlyNotification(ctx, a)
	f.eng.AlarmTriggered(ctx, a)
	f.eng.Close()

	alerts := f.eng.Alerts()
	if len(alerts) != 1 || alerts[0].Kind != AlertRing {
		t.Fatalf("alerts %+v", alerts)
	}
}

func TestSnooze(t *testing.T) {
	f, ctx := setup(t, WithSnoozeMinutes(9))
	a := f.addAlarm(t, wakeUp())

	if _, err := f.eng.Snooze(ctx, "", 0); !errors.Is(err, ErrNothingRinging) {
		t.Fatalf("expected ErrNothingRinging, got %v", err)
	}

	f.eng.AlarmTriggered(ctx, a)
	f.eng.Close()
	snoozed, err := f.eng.Snooze(ctx, "", 0)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if want := t0.Add(9 * time.Minute); !snoozed.SnoozedUntil.Equal(want) {
		t.Fatalf("snoozed until %s, want %s", snoozed.SnoozedUntil, want)
	}
	if len(f.eng.Alerts()) != 0 {
		t.Fatal("snoozing should clear the ring")
	}
	if f.player.stops == 0 {
		t.Fatal("snoozing should stop the sound")
	}

	again, err := f.eng.Snooze(ctx, a.ID, 2)
	if err != nil {
		t.Fatalf("snooze by id: %v", err)
	}
	if want := t0.Add(2 * time.Minute); !again.SnoozedUntil.Equal(want) {
		t.Fatalf("snoozed until %s, want %s", again.SnoozedUntil, want)
	}

	if _, err := f.eng.Snooze(ctx, "missing", 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnoozeKeepsOtherRingSounding(t *testing.T) {
	f, ctx := setup(t)
	a := f.addAlarm(t, wakeUp())
	tm, err := f.eng.AddTimer(ctx, "tea", 3*time.Minute)
	if err != nil {
		t.Fatalf("add timer: %v", err)
	}

	f.eng.TimerFinished(ctx, tm.ID)
	f.eng.AlarmTriggered(ctx, a)
	f.eng.Close()

	if _, err := f.eng.Snooze(ctx, a.ID, 5); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if f.player.stops != 0 {
		t.Fatal("the timer bell was silenced by snoozing an alarm")
	}
	if n := f.eng.Dismiss(ctx); n != 1 || f.player.stops != 1 {
		t.Fatalf("dismissed %d, stops %d", n, f.player.stops)
	}
}

func TestTimerLifecycle(t *testing.T) {
	f, ctx := setup(t)
	tm, err := f.eng.AddTimer(ctx, "", 90*time.Second)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if tm.Name != "1 min 30 sec" || tm.Status != domain.TimerIdle {
		t.Fatalf("added %+v", tm)
	}

	started, err := f.eng.StartTimer(ctx, tm.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.TimerRunning || f.waker.wakes != 1 {
		t.Fatalf("status %s, wakes %d", started.Status, f.waker.wakes)
	}

	*f.now = t0.Add(30 * time.Second)
	paused, err := f.eng.PauseTimer(ctx, tm.ID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Remaining != time.Minute {
		t.Fatalf("remaining after pause %s, want 1m", paused.Remaining)
	}
	if _, err := f.eng.PauseTimer(ctx, tm.ID); !errors.Is(err, domain.ErrNotRunning) {
		t.Fatalf("second pause: expected ErrNotRunning, got %v", err)
	}

	reset, err := f.eng.ResetTimer(ctx, tm.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Status != domain.TimerIdle || reset.Remaining != 90*time.Second {
		t.Fatalf("reset %+v", reset)
	}

	if err := f.eng.DeleteTimer(ctx, tm.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.eng.StartTimer(ctx, tm.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("start deleted: expected ErrNotFound, got %v", err)
	}
}

func TestStartRunningTimerKeepsStart(t *testing.T) {
	f, ctx := setup(t)
	tm, _ := f.eng.AddTimer(ctx, "eggs", 5*time.Minute)
	first, _ := f.eng.StartTimer(ctx, tm.ID)

	*f.now = t0.Add(time.Minute)
	second, err := f.eng.StartTimer(ctx, tm.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Fatal("starting a running timer restarted it")
	}
}

func TestTimerFinishedAndRestart(t *testing.T) {
	f, ctx := setup(t)
	tm, _ := f.eng.AddTimer(ctx, "Pomodoro", 25*time.Minute)

	f.eng.TimerFinished(ctx, tm.ID)
	f.eng.Close()
	if f.player.last() != domain.SoundBell {
		t.Fatalf("played %v", f.player.played)
	}
	if len(f.notifier.urgent) != 1 || f.notifier.urgent[0] != `Timer "Pomodoro" finished (25 min)` {
		t.Fatalf("urgent %q", f.notifier.urgent)
	}

	// Restarting clears the alert and silences the bell.
	if _, err := f.eng.StartTimer(ctx, tm.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(f.eng.Alerts()) != 0 || f.player.stops != 1 {
		t.Fatalf("alerts %+v, stops %d", f.eng.Alerts(), f.player.stops)
	}

	// A finished event for a deleted timer is ignored.
	f.eng.TimerFinished(ctx, "gone")
	if len(f.eng.Alerts()) != 0 {
		t.Fatal("alert raised for a deleted timer")
	}
}

func TestAddPreset(t *testing.T) {
	f, ctx := setup(t)
	tm, err := f.eng.AddPreset(ctx, "pomo")
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	if tm.Name != "Pomodoro" || tm.Duration != 25*time.Minute || tm.Status != domain.TimerRunning {
		t.Fatalf("preset timer %+v", tm)
	}
	if _, err := f.eng.AddPreset(ctx, "lasagna"); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestFindPreset(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Pomodoro", "Pomodoro", true},
		{"short", "Short break", true},
		{"LONG BREAK", "Long break", true},
		{"1 hour", "1 hour", true},
		{"1", "", false}, // "10 minutes" and "1 hour"
		{"", "", false},
	}
	for _, tt := range tests {
		p, ok := FindPreset(tt.in)
		if ok != tt.ok || p.Name != tt.want {
			t.Errorf("FindPreset(%q) = %q, %v; want %q, %v", tt.in, p.Name, ok, tt.want, tt.ok)
		}
	}
}

func TestToggleAndDeleteAlarm(t *testing.T) {
	f, ctx := setup(t)
	a := f.addAlarm(t, wakeUp())
	f.eng.AlarmTriggered(ctx, a)
	f.eng.Close()

	off, err := f.eng.ToggleAlarm(ctx, a.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if off.Enabled || len(f.eng.Alerts()) != 0 || f.player.stops != 1 {
		t.Fatalf("toggle off: enabled=%v alerts=%d stops=%d", off.Enabled, len(f.eng.Alerts()), f.player.stops)
	}
	on, _ := f.eng.ToggleAlarm(ctx, a.ID)
	if !on.Enabled {
		t.Fatal("second toggle should enable")
	}

	if err := f.eng.DeleteAlarm(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.eng.DeleteAlarm(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClearAlarms(t *testing.T) {
	f, ctx := setup(t)
	f.addAlarm(t, wakeUp())
	f.addAlarm(t, wakeUp())
	if err := f.eng.ClearAlarms(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	alarms, _ := f.eng.Alarms(ctx)
	if len(alarms) != 0 {
		t.Fatalf("%d alarms left", len(alarms))
	}
}

func TestResolve(t *testing.T) {
	ids := []string{"3f2a-aaaa", "3f9b-bbbb", "c001-cccc"}
	tests := []struct {
		ref     string
		want    string
		wantErr error
	}{
		{"2", "3f9b-bbbb", nil},
		{"c0", "c001-cccc", nil},
		{"3f2a-aaaa", "3f2a-aaaa", nil},
		{"3f", "", domain.ErrInvalid},
		{"4", "", domain.ErrNotFound},
		{"zz", "", domain.ErrNotFound},
		{"", "", domain.ErrInvalid},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.ref, ids)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve(%q): expected %v, got %v", tt.ref, tt.wantErr, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Resolve(%q) = %q, %v; want %q", tt.ref, got, err, tt.want)
		}
	}
}

func TestParseOncePolicy(t *testing.T) {
	for in, want := range map[string]OncePolicy{"": OncePolicyDisable, "disable": OncePolicyDisable, "Keep": OncePolicyKeep} {
		got, err := ParseOncePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseOncePolicy(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseOncePolicy("delete"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestUpdateAlarmFromEditCommand(t *testing.T) {
	f, ctx := setup(t)
	a := f.addAlarm(t, wakeUp())

	*f.now = t0.Add(time.Minute)
	f.eng.AlarmTriggered(ctx, a)
	f.eng.Close()
	if _, err := f.eng.Snooze(ctx, a.ID, 10); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	f.eng.AlarmTriggered(ctx, a) // ringing again when edited
	f.eng.Close()

	cmd, err := command.NewParser(logger.New(logger.LevelOff, nil)).Parse("alarm edit 1 08:15 weekdays early=off")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	alarms, _ := f.eng.Alarms(ctx)
	id, err := Resolve(cmd.Ref, []string{alarms[0].ID})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stops := f.player.stops
	updated, err := f.eng.UpdateAlarm(ctx, id, cmd.Patch.Apply)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != a.ID || !updated.CreatedAt.Equal(a.CreatedAt) {
		t.Fatalf("identity changed: %+v", updated)
	}
	if updated.Time != (domain.ClockTime{Hour: 8, Minute: 15}) || updated.Repeat.Type != domain.RepeatWeekdays {
		t.Fatalf("edit not applied: %+v", updated)
	}
	if !updated.SnoozedUntil.IsZero() {
		t.Fatalf("snooze kept after edit: %s", updated.SnoozedUntil)
	}
	if updated.EarlyNotification.Enabled || updated.Label != "wake up" || updated.Sound != domain.SoundClassic {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
	if len(f.eng.Alerts()) != 0 || f.player.stops != stops+1 {
		t.Fatalf("edited alarm still ringing: alerts %+v, stops %d", f.eng.Alerts(), f.player.stops)
	}

	// An edit that no longer validates leaves the alarm as it was.
	if _, err := f.eng.UpdateAlarm(ctx, id, func(a *domain.Alarm) { a.Time.Minute = 75 }); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := f.eng.UpdateAlarm(ctx, "gone", cmd.Patch.Apply); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetVolume(t *testing.T) {
	settings := &mockSettings{}
	f, ctx := setup(t, WithVolume(0.7), WithSettings(settings))
	if f.eng.Volume() != 0.7 {
		t.Fatalf("initial volume %.2f", f.eng.Volume())
	}

	if err := f.eng.SetVolume(ctx, 0.4); err != nil {
		t.Fatalf("set: %v", err)
	}
	if f.eng.Volume() != 0.4 || f.player.volume != 0.4 {
		t.Fatalf("engine %.2f, player %.2f", f.eng.Volume(), f.player.volume)
	}
	if got, _ := settings.LoadSettings(ctx, domain.Settings{}); got.Volume != 0.4 {
		t.Fatalf("saved %+v", settings.saved)
	}

	if err := f.eng.SetVolume(ctx, 1.5); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if f.eng.Volume() != 0.4 || len(settings.saved) != 1 {
		t.Fatal("rejected volume was applied")
	}

	// A failed save still changes the level for this run.
	settings.err = errors.New("disk full")
	if err := f.eng.SetVolume(ctx, 0); err != nil {
		t.Fatalf("set with failing store: %v", err)
	}
	if f.eng.Volume() != 0 || f.player.volume != 0 {
		t.Fatalf("engine %.2f, player %.2f", f.eng.Volume(), f.player.volume)
	}
}

func TestStartTimerReportsRemainingNow(t *testing.T) {
	f, ctx := setup(t)
	tm, _ := f.eng.AddTimer(ctx, "tea", 3*time.Minute)

	// Finished timers restart from the full duration, not 0:00.
	if _, err := f.store.UpdateTimer(ctx, tm.ID, func(cur *domain.Timer) { cur.Status = domain.TimerFinished; cur.Remaining = 0 }); err != nil {
		t.Fatalf("finish: %v", err)
	}
	started, err := f.eng.StartTimer(ctx, tm.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Remaining != 3*time.Minute {
		t.Fatalf("remaining after restart %s, want 3m", started.Remaining)
	}

	*f.now = t0.Add(time.Minute)
	if _, err := f.eng.PauseTimer(ctx, tm.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	*f.now = t0.Add(5 * time.Minute)
	resumed, err := f.eng.StartTimer(ctx, tm.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Remaining != 2*time.Minute {
		t.Fatalf("remaining after resume %s, want 2m", resumed.Remaining)
	}

	// Starting again while running reports the live value.
	*f.now = t0.Add(5*time.Minute + 30*time.Second)
	again, _ := f.eng.StartTimer(ctx, tm.ID)
	if again.Remaining != 90*time.Second {
		t.Fatalf("remaining while running %s, want 1m30s", again.Remaining)
	}
}
