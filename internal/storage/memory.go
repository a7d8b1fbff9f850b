// Package storage keeps the alarm and timer collections and persists them.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.AlarmStore = (*MemoryStore)(nil)
	_ domain.TimerStore = (*MemoryStore)(nil)
)

// Persister writes whole collections to durable storage.
type Persister interface {
	SaveAlarms(ctx context.Context, alarms []*domain.Alarm) error
	SaveTimers(ctx context.Context, timers []*domain.Timer) error
}

// Option configures the memory store.
type Option func(*MemoryStore)

// WithPersister saves every user-visible change through p. Save failures
// are logged and never returned to the caller.
func WithPersister(p Persister) Option {
	return func(s *MemoryStore) {
		s.persist = p
	}
}

// WithNow replaces the clock used for CreatedAt.
func WithNow(now func() time.Time) Option {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// MemoryStore is an ordered in-memory collection of alarms and timers.
// Safe for concurrent access; every returned record is a copy.
type MemoryStore struct {
	mu      sync.RWMutex
	alarms  []*domain.Alarm
	timers  []*domain.Timer
	log     *logger.Logger
	persist Persister
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(log *logger.Logger, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		log: log,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed replaces both collections without persisting, for loading saved
// state at startup.
func (s *MemoryStore) Seed(alarms []*domain.Alarm, timers []*domain.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alarms = make([]*domain.Alarm, 0, len(alarms))
	for _, a := range alarms {
		s.alarms = append(s.alarms, a.Clone())
	}
	s.timers = make([]*domain.Timer, 0, len(timers))
	for _, t := range timers {
		s.timers = append(s.timers, t.Clone())
	}
	s.log.Debug("seeded store with %d alarms, %d timers", len(alarms), len(timers))
}

// --- Alarms ---

// ListAlarms returns all alarms in insertion order.
func (s *MemoryStore) ListAlarms(_ context.Context) ([]*domain.Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Alarm, len(s.alarms))
	for i, a := range s.alarms {
		out[i] = a.Clone()
	}
	return out, nil
}

// GetAlarm returns one alarm by id.
func (s *MemoryStore) GetAlarm(_ context.Context, id string) (*domain.Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.alarmIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("alarm %s: %w", id, domain.ErrNotFound)
	}
	return s.alarms[i].Clone(), nil
}

// AddAlarm validates and appends an alarm. An empty id is replaced with a
// fresh one, an empty sound with the default.
func (s *MemoryStore) AddAlarm(ctx context.Context, alarm *domain.Alarm) (*domain.Alarm, error) {
	a := alarm.Clone()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Sound == "" {
		a.Sound = domain.SoundDefault
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.alarmIndex(a.ID) >= 0 {
		return nil, fmt.Errorf("alarm %s: %w", a.ID, domain.ErrAlreadyExists)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.alarms = append(s.alarms, a)
	s.log.Debug("added alarm %s at %s (%s)", a.ID, a.Time, a.Repeat.Type)
	s.saveAlarms(ctx)
	return a.Clone(), nil
}

// UpdateAlarm applies fn to a copy of the alarm and stores the result if
// it still validates. The id and creation time cannot be changed.
func (s *MemoryStore) UpdateAlarm(ctx context.Context, id string, fn func(*domain.Alarm)) (*domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.alarmIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("alarm %s: %w", id, domain.ErrNotFound)
	}

	next := s.alarms[i].Clone()
	fn(next)
	next.ID = id
	next.CreatedAt = s.alarms[i].CreatedAt
	if err := next.Validate(); err != nil {
		return nil, err
	}
	s.alarms[i] = next
	s.saveAlarms(ctx)
	return next.Clone(), nil
}

// DeleteAlarm removes an alarm.
func (s *MemoryStore) DeleteAlarm(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.alarmIndex(id)
	if i < 0 {
		return fmt.Errorf("alarm %s: %w", id, domain.ErrNotFound)
	}
	s.alarms = append(s.alarms[:i], s.alarms[i+1:]...)
	s.log.Debug("deleted alarm %s", id)
	s.saveAlarms(ctx)
	return nil
}

// ClearAlarms removes every alarm.
func (s *MemoryStore) ClearAlarms(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alarms = nil
	s.log.Debug("cleared all alarms")
	s.saveAlarms(ctx)
	return nil
}

func (s *MemoryStore) alarmIndex(id string) int {
	for i, a := range s.alarms {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// saveAlarms persists the collection. Callers hold s.mu.
func (s *MemoryStore) saveAlarms(ctx context.Context) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveAlarms(ctx, s.alarms); err != nil {
		s.log.Error("saving alarms: %v", err)
	}
}

// --- Timers ---

// ListTimers returns all timers in insertion order.
func (s *MemoryStore) ListTimers(_ context.Context) ([]*domain.Timer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Timer, len(s.timers))
	for i, t := range s.timers {
		out[i] = t.Clone()
	}
	return out, nil
}

// GetTimer returns one timer by id.
func (s *MemoryStore) GetTimer(_ context.Context, id string) (*domain.Timer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.timerIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("timer %s: %w", id, domain.ErrNotFound)
	}
	return s.timers[i].Clone(), nil
}

// AddTimer validates and appends an idle timer with its full duration
// remaining. Timers always use the bell.
func (s *MemoryStore) AddTimer(ctx context.Context, timer *domain.Timer) (*domain.Timer, error) {
	t := timer.Clone()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = domain.TimerIdle
	t.Remaining = t.Duration
	t.StartedAt = time.Time{}
	t.PausedAt = time.Time{}
	t.Sound = domain.TimerSound

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timerIndex(t.ID) >= 0 {
		return nil, fmt.Errorf("timer %s: %w", t.ID, domain.ErrAlreadyExists)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.timers = append(s.timers, t)
	s.log.Debug("added timer %s (%s, %s)", t.ID, t.Name, t.Duration)
	s.saveTimers(ctx)
	return t.Clone(), nil
}

// UpdateTimer applies fn to a copy of the timer. Changes limited to the
// countdown state (remaining, status, timestamps) are not persisted since
// timers always reload idle.
func (s *MemoryStore) UpdateTimer(ctx context.Context, id string, fn func(*domain.Timer)) (*domain.Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.timerIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("timer %s: %w", id, domain.ErrNotFound)
	}

	prev := s.timers[i]
	next := prev.Clone()
	fn(next)
	next.ID = id
	if err := next.Validate(); err != nil {
		return nil, err
	}
	s.timers[i] = next

	if next.Name != prev.Name || next.Duration != prev.Duration || next.Sound != prev.Sound {
		s.saveTimers(ctx)
	}
	return next.Clone(), nil
}

// DeleteTimer removes a timer.
func (s *MemoryStore) DeleteTimer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.timerIndex(id)
	if i < 0 {
		return fmt.Errorf("timer %s: %w", id, domain.ErrNotFound)
	}
	s.timers = append(s.timers[:i], s.timers[i+1:]...)
	s.log.Debug("deleted timer %s", id)
	s.saveTimers(ctx)
	return nil
}

func (s *MemoryStore) timerIndex(id string) int {
	for i, t := range s.timers {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// saveTimers persists the collection. Callers hold s.mu.
func (s *MemoryStore) saveTimers(ctx context.Context) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveTimers(ctx, s.timers); err != nil {
		s.log.Error("saving timers: %v", err)
	}
}
