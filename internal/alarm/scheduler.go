package alarm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/clock"
	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

// Mode selects how the scheduler combines snooze and early notifications.
type Mode int

const (
	// ModeFull honours snooze and lets a shown early notification
	// suppress a full ring in the same minute.
	ModeFull Mode = iota
	// ModeBasic ignores snooze and evaluates early and full rings
	// independently.
	ModeBasic
)

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeBasic:
		return "basic"
	default:
		return "unknown"
	}
}

// ParseMode maps a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return ModeFull, nil
	case "basic":
		return ModeBasic, nil
	}
	return ModeFull, fmt.Errorf("unknown scheduler mode %q", s)
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often the scheduler samples the clock. Anything
// coarser than a minute can miss alarms.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.tickInterval = d
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithMode selects full or basic evaluation.
func WithMode(m Mode) Option {
	return func(s *Scheduler) {
		s.mode = m
	}
}

// Scheduler samples the clock on a fixed cadence, evaluates every alarm
// against that one sample and emits each ring or early notification at most
// once per calendar minute.
type Scheduler struct {
	alarms       domain.AlarmSource
	events       domain.AlarmEvents
	log          *logger.Logger
	clock        clock.Clock
	tickInterval time.Duration
	mode         Mode

	// Per-minute dedup state. Guarded by stateMu so Tick can also be
	// called directly.
	stateMu    sync.Mutex
	fired      map[string]struct{}
	earlyFired map[string]struct{}
	lastMinute int64
	seenMinute bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates an alarm scheduler reading from alarms and reporting
// to events.
func NewScheduler(alarms domain.AlarmSource, events domain.AlarmEvents, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		alarms:       alarms,
		events:       events,
		log:          log,
		clock:        clock.Real{},
		tickInterval: 1 * time.Second,
		mode:         ModeFull,
		fired:        make(map[string]struct{}),
		earlyFired:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background loop. Non-blocking. The first tick runs
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn("alarm scheduler already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(childCtx, s.done)

	s.log.Info("alarm scheduler started (tick=%s, mode=%s)", s.tickInterval, s.mode)
}

// Stop cancels the loop and waits for it to exit, so no event is emitted
// after Stop returns. Must not be called from an event handler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	<-s.done
	s.running = false
	s.log.Info("alarm scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	s.Tick(ctx)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass against a single clock sample.
func (s *Scheduler) Tick(ctx context.Context) {
	now := clock.Sample(s.clock)

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if key := now.MinuteKey(); !s.seenMinute || key != s.lastMinute {
		clear(s.fired)
		clear(s.earlyFired)
		s.lastMinute = key
		s.seenMinute = true
	}

	alarms, err := s.alarms.ListAlarms(ctx)
	if err != nil {
		s.log.Error("listing alarms: %v", err)
		return
	}

	for _, a := range alarms {
		if ctx.Err() != nil {
			return
		}
		s.evaluate(ctx, a, now)
	}
}

// evaluate handles one alarm. A panic while evaluating is contained to this
// alarm so the rest of the tick still runs.
func (s *Scheduler) evaluate(ctx context.Context, a *domain.Alarm, now clock.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("evaluating alarm %s: %v", a.ID, r)
		}
	}()

	subject := a
	if s.mode == ModeBasic && !a.SnoozedUntil.IsZero() {
		subject = a.Clone()
		subject.SnoozedUntil = time.Time{}
	}

	if _, sent := s.earlyFired[a.ID]; !sent && ShouldSendEarlyNotification(subject, now) {
		s.earlyFired[a.ID] = struct{}{}
		s.log.Info("early notification for alarm %s (%s, %q)", a.ID, a.Time, a.Label)
		s.emit(a.ID, "early notification", func() { s.events.EarlyNotification(ctx, a.Clone()) })
	}

	if _, rang := s.fired[a.ID]; rang {
		return
	}

	if s.mode == ModeFull && a.EarlyNotification.Enabled {
		if _, sent := s.earlyFired[a.ID]; sent {
			return
		}
	}

	if ShouldRing(subject, now) {
		s.fired[a.ID] = struct{}{}
		s.log.Info("alarm %s ringing (%s, %q)", a.ID, a.Time, a.Label)
		s.emit(a.ID, "ring", func() { s.events.AlarmTriggered(ctx, a.Clone()) })
	}
}

// emit calls a handler, recovering from a panic so the alarm stays marked
// as fired and the loop keeps going.
func (s *Scheduler) emit(id, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("%s handler for alarm %s panicked: %v", what, id, r)
		}
	}()
	fn()
}
