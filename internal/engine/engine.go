// Package engine is the application core. It owns the alarm and timer
// operations the user can run and reacts to scheduler and runner events by
// playing sounds and sending notifications.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/alarm"
	"github.com/hammamikhairi/ottoclock/internal/clock"
	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
	"github.com/hammamikhairi/ottoclock/internal/timer"
)

// Compile-time interface checks.
var (
	_ domain.AlarmEvents = (*Engine)(nil)
	_ domain.TimerEvents = (*Engine)(nil)
)

// ErrNothingRinging is returned by Snooze when no alarm is ringing and no
// id was given.
var ErrNothingRinging = errors.New("no alarm is ringing")

// DefaultSnoozeMinutes is used when neither the caller nor the config
// picks a snooze length.
const DefaultSnoozeMinutes = 5

// Store is the collection the engine operates on.
type Store interface {
	domain.AlarmStore
	domain.TimerStore
}

// Waker is told when a timer starts so an idle runner resumes ticking.
type Waker interface {
	Wake()
}

// Option configures the engine.
type Option func(*Engine)

// WithOncePolicy sets what happens to "once" alarms after they ring.
func WithOncePolicy(p OncePolicy) Option {
	return func(e *Engine) {
		e.once = p
	}
}

// WithSnoozeMinutes sets the default snooze length.
func WithSnoozeMinutes(m int) Option {
	return func(e *Engine) {
		if m > 0 {
			e.snooze = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithVolume sets the starting volume reported by Volume. It should match
// the level the player was created with.
func WithVolume(v float64) Option {
	return func(e *Engine) {
		e.volume = v
	}
}

// WithSettings saves volume changes to s.
func WithSettings(s domain.SettingsStore) Option {
	return func(e *Engine) {
		e.settings = s
	}
}

// AlertKind tells what an active alert is about.
type AlertKind int

const (
	AlertRing AlertKind = iota
	AlertEarly
	AlertTimer
)

// String returns a short name for the alert kind.
func (k AlertKind) String() string {
	switch k {
	case AlertRing:
		return "ringing"
	case AlertEarly:
		return "early"
	case AlertTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Alert is something the user has not dismissed yet.
type Alert struct {
	Kind    AlertKind
	ID      string // alarm or timer id
	Message string
	At      time.Time
}

// urgent alerts hold the loud sound; early warnings don't.
func (a Alert) urgent() bool { return a.Kind != AlertEarly }

// Engine wires the store to sound and notification output.
type Engine struct {
	store    Store
	player   domain.SoundPlayer
	notifier domain.Notifier
	log      *logger.Logger

	clock    clock.Clock
	once     OncePolicy
	snooze   int
	settings domain.SettingsStore // nil: volume changes last until exit

	mu     sync.Mutex
	alerts []Alert
	waker  Waker
	volume float64

	// in-flight notifications
	wg sync.WaitGroup
}

// New creates an engine with the given dependencies and options.
func New(store Store, player domain.SoundPlayer, notifier domain.Notifier, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		player:   player,
		notifier: notifier,
		log:      log,
		clock:    clock.Real{},
		once:     OncePolicyDisable,
		snooze:   DefaultSnoozeMinutes,
		volume:   1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetWaker attaches the timer runner. The runner needs the engine as its
// event sink, so it is created after the engine and attached here.
func (e *Engine) SetWaker(w Waker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waker = w
}

// Close waits for notifications that are still being delivered.
func (e *Engine) Close() {
	e.wg.Wait()
}

// --- Event handlers ---

// AlarmTriggered rings the alarm: loud sound, urgent notification and,
// for "once" alarms under OncePolicyDisable, turning the alarm off.
func (e *Engine) AlarmTriggered(ctx context.Context, a *domain.Alarm) {
	msg := fmt.Sprintf("Alarm %s", a.Time)
	if a.Label != "" {
		msg += ": " + a.Label
	}
	e.log.Info("alarm %s ringing (%s)", a.ID, a.Time)

	e.mu.Lock()
	e.dropLocked(a.ID, AlertEarly)
	e.pushLocked(Alert{Kind: AlertRing, ID: a.ID, Message: msg, At: e.clock.Now()})
	e.mu.Unlock()

	sound := a.Sound
	if sound == "" {
		sound = domain.SoundDefault
	}
	e.play(sound)
	e.deliver(ctx, msg, true)

	if a.Repeat.Type == domain.RepeatOnce && e.once == OncePolicyDisable {
		_, err := e.store.UpdateAlarm(ctx, a.ID, func(cur *domain.Alarm) {
			cur.Enabled = false
		})
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			e.log.Error("disabling once alarm %s: %v", a.ID, err)
		}
	}
}

// EarlyNotification warns that an alarm is about to ring.
func (e *Engine) EarlyNotification(ctx context.Context, a *domain.Alarm) {
	msg := fmt.Sprintf("Alarm %s in %d minutes", a.Time, a.EarlyNotification.MinutesBefore)
	if a.Label != "" {
		msg += ": " + a.Label
	}
	e.log.Info("early notification for alarm %s", a.ID)

	e.mu.Lock()
	loud := e.urgentLocked()
	e.pushLocked(Alert{Kind: AlertEarly, ID: a.ID, Message: msg, At: e.clock.Now()})
	e.mu.Unlock()

	// Don't cut off a ringing alarm or timer for a warning.
	if !loud {
		e.play(domain.EarlyNotificationSound)
	}
	e.deliver(ctx, msg, false)
}

// TimerFinished plays the bell and notifies.
func (e *Engine) TimerFinished(ctx context.Context, id string) {
	t, err := e.store.GetTimer(ctx, id)
	if err != nil {
		// Deleted between the runner's update and now.
		e.log.Debug("finished timer %s is gone: %v", id, err)
		return
	}
	name := t.Name
	if name == "" {
		name = timer.DurationText(t.Duration)
	}
	msg := fmt.Sprintf("Timer %q finished (%s)", name, timer.DurationText(t.Duration))

	e.mu.Lock()
	e.pushLocked(Alert{Kind: AlertTimer, ID: id, Message: msg, At: e.clock.Now()})
	e.mu.Unlock()

	sound := t.Sound
	if sound == "" {
		sound = domain.TimerSound
	}
	e.play(sound)
	e.deliver(ctx, msg, true)
}

func (e *Engine) play(sound string) {
	if err := e.player.Play(sound); err != nil {
		e.log.Warn("playing %s: %v", sound, err)
	}
}

// deliver notifies in the background so a slow push service can't hold up
// the scheduler goroutine.
func (e *Engine) deliver(ctx context.Context, msg string, urgent bool) {
	ctx = context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		var err error
		if urgent {
			err = e.notifier.NotifyUrgent(ctx, msg)
		} else {
			err = e.notifier.Notify(ctx, msg)
		}
		if err != nil {
			e.log.Warn("notification %q: %v", msg, err)
		}
	}()
}

// --- Alerts ---

func (e *Engine) pushLocked(a Alert) {
	e.dropLocked(a.ID, a.Kind)
	e.alerts = append(e.alerts, a)
}

func (e *Engine) dropLocked(id string, kind AlertKind) bool {
	for i, a := range e.alerts {
		if a.ID == id && a.Kind == kind {
			e.alerts = append(e.alerts[:i], e.alerts[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) dropAllLocked(id string) {
	kept := e.alerts[:0]
	for _, a := range e.alerts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	e.alerts = kept
}

func (e *Engine) urgentLocked() bool {
	for _, a := range e.alerts {
		if a.urgent() {
			return true
		}
	}
	return false
}

// settleSound stops playback once no urgent alert is left.
func (e *Engine) settleSound() {
	e.mu.Lock()
	loud := e.urgentLocked()
	e.mu.Unlock()
	if !loud {
		e.player.Stop()
	}
}

// Alerts returns the alerts that have not been dismissed, oldest first.
func (e *Engine) Alerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Alert(nil), e.alerts...)
}

// Dismiss silences everything and clears every alert. Dismissing an early
// warning does not cancel the ring that follows it.
func (e *Engine) Dismiss(_ context.Context) int {
	e.mu.Lock()
	n := len(e.alerts)
	e.alerts = nil
	e.mu.Unlock()

	e.player.Stop()
	if n > 0 {
		e.log.Info("dismissed %d alert(s)", n)
	}
	return n
}

// Snooze suppresses an alarm for the given number of minutes. An empty id
// snoozes the alarm that is ringing; minutes <= 0 uses the default.
func (e *Engine) Snooze(ctx context.Context, id string, minutes int) (*domain.Alarm, error) {
	if minutes <= 0 {
		minutes = e.snooze
	}
	if id == "" {
		id = e.ringingID()
		if id == "" {
			return nil, ErrNothingRinging
		}
	}

	until := e.clock.Now().Add(time.Duration(minutes) * time.Minute)
	a, err := e.store.UpdateAlarm(ctx, id, func(cur *domain.Alarm) {
		cur.SnoozedUntil = until
	})
	if err != nil {
		return nil, fmt.Errorf("snoozing alarm: %w", err)
	}

	e.mu.Lock()
	e.dropAllLocked(id)
	e.mu.Unlock()
	e.settleSound()

	e.log.Info("alarm %s snoozed until %s", id, until.Format("15:04"))
	return a, nil
}

// ringingID returns the most recent ringing alarm.
func (e *Engine) ringingID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.alerts) - 1; i >= 0; i-- {
		if e.alerts[i].Kind == AlertRing {
			return e.alerts[i].ID
		}
	}
	return ""
}

// --- Alarms ---

// Alarms returns every alarm in insertion order.
func (e *Engine) Alarms(ctx context.Context) ([]*domain.Alarm, error) {
	return e.store.ListAlarms(ctx)
}

// AddAlarm validates and stores a new alarm.
func (e *Engine) AddAlarm(ctx context.Context, a *domain.Alarm) (*domain.Alarm, error) {
	added, err := e.store.AddAlarm(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("adding alarm: %w", err)
	}
	e.log.Info("added alarm %s at %s (%s)", added.ID, added.Time, alarm.RepeatText(added.Repeat))
	return added, nil
}

// UpdateAlarm applies fn to the stored alarm. The id and creation time
// are kept whatever fn does. An edited alarm that was ringing or warning
// is silenced; it rings again on its new schedule.
func (e *Engine) UpdateAlarm(ctx context.Context, id string, fn func(*domain.Alarm)) (*domain.Alarm, error) {
	a, err := e.store.UpdateAlarm(ctx, id, fn)
	if err != nil {
		return nil, fmt.Errorf("updating alarm: %w", err)
	}

	e.mu.Lock()
	e.dropAllLocked(id)
	e.mu.Unlock()
	e.settleSound()

	e.log.Info("updated alarm %s: %s (%s)", id, a.Time, alarm.RepeatText(a.Repeat))
	return a, nil
}

// ToggleAlarm flips an alarm between enabled and disabled. Turning an
// alarm off silences it if it is ringing.
func (e *Engine) ToggleAlarm(ctx context.Context, id string) (*domain.Alarm, error) {
	a, err := e.store.UpdateAlarm(ctx, id, func(cur *domain.Alarm) {
		cur.Enabled = !cur.Enabled
	})
	if err != nil {
		return nil, fmt.Errorf("toggling alarm: %w", err)
	}
	if !a.Enabled {
		e.mu.Lock()
		e.dropAllLocked(id)
		e.mu.Unlock()
		e.settleSound()
	}
	e.log.Info("alarm %s enabled=%v", id, a.Enabled)
	return a, nil
}

// DeleteAlarm removes an alarm and any alert it raised.
func (e *Engine) DeleteAlarm(ctx context.Context, id string) error {
	if err := e.store.DeleteAlarm(ctx, id); err != nil {
		return fmt.Errorf("deleting alarm: %w", err)
	}
	e.mu.Lock()
	e.dropAllLocked(id)
	e.mu.Unlock()
	e.settleSound()
	return nil
}

// ClearAlarms removes every alarm.
func (e *Engine) ClearAlarms(ctx context.Context) error {
	alarms, err := e.store.ListAlarms(ctx)
	if err != nil {
		return fmt.Errorf("clearing alarms: %w", err)
	}
	if err := e.store.ClearAlarms(ctx); err != nil {
		return fmt.Errorf("clearing alarms: %w", err)
	}
	e.mu.Lock()
	for _, a := range alarms {
		e.dropAllLocked(a.ID)
	}
	e.mu.Unlock()
	e.settleSound()
	return nil
}

// --- Settings ---

// Volume returns the current output level, 0 to 1.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// SetVolume changes the output level and saves it. A failed save is
// logged; the new level still applies until exit.
func (e *Engine) SetVolume(ctx context.Context, v float64) error {
	if v < 0 || v > 1 {
		return &domain.ValidationError{Field: "volume", Reason: fmt.Sprintf("%.2f is outside 0 to 1", v)}
	}
	e.player.SetVolume(v)

	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()

	if e.settings != nil {
		if err := e.settings.SaveSettings(ctx, domain.Settings{Volume: v}); err != nil {
			e.log.Error("saving volume: %v", err)
		}
	}
	e.log.Info("volume set to %.0f%%", v*100)
	return nil
}

// --- Timers ---

// Timers returns every timer in insertion order.
func (e *Engine) Timers(ctx context.Context) ([]*domain.Timer, error) {
	return e.store.ListTimers(ctx)
}

// AddTimer stores an idle timer. An empty name is replaced by the duration.
func (e *Engine) AddTimer(ctx context.Context, name string, d time.Duration) (*domain.Timer, error) {
	if strings.TrimSpace(name) == "" {
		name = timer.DurationText(d)
	}
	t, err := e.store.AddTimer(ctx, &domain.Timer{Name: name, Duration: d})
	if err != nil {
		return nil, fmt.Errorf("adding timer: %w", err)
	}
	e.log.Info("added timer %s %q (%s)", t.ID, t.Name, d)
	return t, nil
}

// AddPreset adds a timer from a preset and starts it. name matches a
// preset case-insensitively, by full name or prefix.
func (e *Engine) AddPreset(ctx context.Context, name string) (*domain.Timer, error) {
	p, ok := FindPreset(name)
	if !ok {
		return nil, &domain.ValidationError{Field: "preset", Reason: fmt.Sprintf("no preset named %q", name)}
	}
	t, err := e.AddTimer(ctx, p.Name, p.Duration)
	if err != nil {
		return nil, err
	}
	return e.StartTimer(ctx, t.ID)
}

// FindPreset looks a preset up by name or unique prefix.
func FindPreset(name string) (domain.TimerPreset, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return domain.TimerPreset{}, false
	}
	var match []domain.TimerPreset
	for _, p := range domain.TimerPresets {
		lower := strings.ToLower(p.Name)
		if lower == name {
			return p, true
		}
		if strings.HasPrefix(lower, name) {
			match = append(match, p)
		}
	}
	if len(match) == 1 {
		return match[0], true
	}
	return domain.TimerPreset{}, false
}

// StartTimer starts or resumes a timer and returns it with Remaining
// computed for now. Starting a running timer keeps its start; starting a
// finished one runs it again from the full duration.
func (e *Engine) StartTimer(ctx context.Context, id string) (*domain.Timer, error) {
	now := e.clock.Now()
	t, err := e.store.UpdateTimer(ctx, id, func(cur *domain.Timer) {
		if cur.Status != domain.TimerRunning {
			timer.Start(cur, now)
		}
		cur.Remaining = timer.Remaining(cur, now)
	})
	if err != nil {
		return nil, fmt.Errorf("starting timer: %w", err)
	}

	e.mu.Lock()
	e.dropAllLocked(id)
	w := e.waker
	e.mu.Unlock()
	e.settleSound()

	if w != nil {
		w.Wake()
	}
	e.log.Info("timer %s running, %s left", id, timer.FormatClock(t.Remaining))
	return t, nil
}

// PauseTimer freezes a running timer.
func (e *Engine) PauseTimer(ctx context.Context, id string) (*domain.Timer, error) {
	now := e.clock.Now()
	var pauseErr error
	t, err := e.store.UpdateTimer(ctx, id, func(cur *domain.Timer) {
		pauseErr = timer.Pause(cur, now)
	})
	if err != nil {
		return nil, fmt.Errorf("pausing timer: %w", err)
	}
	if pauseErr != nil {
		return nil, pauseErr
	}
	e.log.Info("timer %s paused, %s left", id, timer.FormatClock(t.Remaining))
	return t, nil
}

// ResetTimer returns a timer to idle with its full duration.
func (e *Engine) ResetTimer(ctx context.Context, id string) (*domain.Timer, error) {
	t, err := e.store.UpdateTimer(ctx, id, timer.Reset)
	if err != nil {
		return nil, fmt.Errorf("resetting timer: %w", err)
	}
	e.mu.Lock()
	e.dropAllLocked(id)
	e.mu.Unlock()
	e.settleSound()
	return t, nil
}

// DeleteTimer removes a timer and any alert it raised.
func (e *Engine) DeleteTimer(ctx context.Context, id string) error {
	if err := e.store.DeleteTimer(ctx, id); err != nil {
		return fmt.Errorf("deleting timer: %w", err)
	}
	e.mu.Lock()
	e.dropAllLocked(id)
	e.mu.Unlock()
	e.settleSound()
	return nil
}

// Resolve maps a user-typed reference to an id. ref may be a full id, an
// id prefix, or a 1-based position in the listing.
func Resolve(ref string, ids []string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &domain.ValidationError{Field: "id", Reason: "empty reference"}
	}
	if pos, err := strconv.Atoi(ref); err == nil {
		if pos < 1 || pos > len(ids) {
			return "", fmt.Errorf("#%d: %w", pos, domain.ErrNotFound)
		}
		return ids[pos-1], nil
	}
	found := ""
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
		if strings.HasPrefix(id, ref) {
			if found != "" {
				return "", &domain.ValidationError{Field: "id", Reason: fmt.Sprintf("%q is ambiguous", ref)}
			}
			found = id
		}
	}
	if found == "" {
		return "", fmt.Errorf("%q: %w", ref, domain.ErrNotFound)
	}
	return found, nil
}
