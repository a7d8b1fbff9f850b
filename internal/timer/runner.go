package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/clock"
	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

// Option configures the runner.
type Option func(*Runner)

// WithTickInterval sets how often running timers are recomputed.
func WithTickInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.tickInterval = d
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// Runner recomputes the remaining time of every running timer from its
// start timestamp, writes it back to the store and reports each timer that
// reaches zero exactly once. While no timer runs it holds no ticker and
// waits for Wake.
type Runner struct {
	timers       domain.TimerSource
	events       domain.TimerEvents
	log          *logger.Logger
	clock        clock.Clock
	tickInterval time.Duration

	// finished maps a timer id to the StartedAt of the run that finished,
	// so a restarted timer is never mistaken for the old run.
	stateMu  sync.Mutex
	finished map[string]time.Time

	wake chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRunner creates a timer runner reading from timers and reporting to
// events.
func NewRunner(timers domain.TimerSource, events domain.TimerEvents, log *logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		timers:       timers,
		events:       events,
		log:          log,
		clock:        clock.Real{},
		tickInterval: 100 * time.Millisecond,
		finished:     make(map[string]time.Time),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the background loop. Non-blocking.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.log.Warn("timer runner already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(childCtx, r.done)

	r.log.Info("timer runner started (tick=%s)", r.tickInterval)
}

// Stop cancels the loop and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.cancel()
	<-r.done
	r.running = false
	r.log.Info("timer runner stopped")
}

// Wake tells the runner a timer may have started. Never blocks.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	active := r.Tick(ctx)
	for {
		if !active {
			r.log.Debug("no running timers, idling")
			select {
			case <-ctx.Done():
				return
			case <-r.wake:
			}
			active = r.Tick(ctx)
			continue
		}

		ticker := time.NewTicker(r.tickInterval)
		for active {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-r.wake:
			case <-ticker.C:
				active = r.Tick(ctx)
			}
		}
		ticker.Stop()
	}
}

// Tick runs one pass over the running timers against a single clock
// sample. It reports whether any timer is still running afterwards.
func (r *Runner) Tick(ctx context.Context) bool {
	now := r.clock.Now()

	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	timers, err := r.timers.ListTimers(ctx)
	if err != nil {
		r.log.Error("listing timers: %v", err)
		// Keep ticking so a transient failure does not strand running timers.
		return true
	}

	running := make(map[string]struct{})
	stillRunning := false
	for _, t := range timers {
		if t.Status != domain.TimerRunning || t.StartedAt.IsZero() {
			continue
		}
		running[t.ID] = struct{}{}
		if ctx.Err() != nil {
			break
		}
		if r.advance(ctx, t, now) {
			stillRunning = true
		}
	}

	for id := range r.finished {
		if _, ok := running[id]; !ok {
			delete(r.finished, id)
		}
	}

	return stillRunning
}

// advance updates one timer and reports whether it is still running.
func (r *Runner) advance(ctx context.Context, t *domain.Timer, now time.Time) (still bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("advancing timer %s: %v", t.ID, rec)
			still = false
		}
	}()

	remaining := Remaining(t, now)
	finishing := false
	if remaining <= 0 {
		if started, seen := r.finished[t.ID]; !seen || !started.Equal(t.StartedAt) {
			finishing = true
		}
	}

	applied, restarted := false, false
	_, err := r.timers.UpdateTimer(ctx, t.ID, func(cur *domain.Timer) {
		// Paused, reset or restarted since the list: leave it alone.
		if cur.Status != domain.TimerRunning || !cur.StartedAt.Equal(t.StartedAt) {
			restarted = cur.Status == domain.TimerRunning
			return
		}
		applied = true
		cur.Remaining = remaining
		if finishing {
			Finish(cur)
		}
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false
	}
	if err != nil {
		r.log.Error("updating timer %s: %v", t.ID, err)
		return true
	}
	if !applied {
		return restarted
	}
	if !finishing {
		return remaining > 0
	}

	r.finished[t.ID] = t.StartedAt
	r.log.Info("timer %s finished (%q)", t.ID, t.Name)
	r.emit(ctx, t.ID)
	return false
}

// emit calls the finished handler, recovering from a panic.
func (r *Runner) emit(ctx context.Context, id string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("finished handler for timer %s panicked: %v", id, rec)
		}
	}()
	r.events.TimerFinished(ctx, id)
}
