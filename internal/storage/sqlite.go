package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

// Compile-time interface checks.
var (
	_ Persister                = (*SQLite)(nil)
	_ domain.SubscriptionStore = (*SQLite)(nil)
	_ domain.SettingsStore     = (*SQLite)(nil)
)

// SQLite persists alarms, timers and push subscriptions in a local
// database file. Each alarm and timer is one JSON document plus its
// position in the list.
type SQLite struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string, log *logger.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	log.Info("database opened at %s", path)
	return &SQLite{db: db, log: log}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS alarms (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timers (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS push_subscriptions (
		endpoint TEXT PRIMARY KEY,
		p256dh TEXT NOT NULL,
		auth TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// alarmRecord is the stored shape of an alarm. Times are epoch millis;
// EarlyNotification is a pointer so records written before the field
// existed can be told apart.
type alarmRecord struct {
	ID                string                    `json:"id"`
	Time              domain.ClockTime          `json:"time"`
	Enabled           bool                      `json:"enabled"`
	Label             string                    `json:"label"`
	Repeat            domain.Repeat             `json:"repeat"`
	Sound             string                    `json:"sound"`
	CreatedAt         int64                     `json:"createdAt"`
	SnoozedUntil      *int64                    `json:"snoozedUntil,omitempty"`
	EarlyNotification *domain.EarlyNotification `json:"earlyNotification,omitempty"`
}

type timerRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Duration  int64  `json:"duration"` // seconds
	Sound     string `json:"sound"`
	CreatedAt int64  `json:"createdAt"`
}

// millis maps the zero time to 0.
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func toAlarmRecord(a *domain.Alarm) alarmRecord {
	early := a.EarlyNotification
	r := alarmRecord{
		ID:                a.ID,
		Time:              a.Time,
		Enabled:           a.Enabled,
		Label:             a.Label,
		Repeat:            a.Repeat,
		Sound:             a.Sound,
		CreatedAt:         millis(a.CreatedAt),
		EarlyNotification: &early,
	}
	if !a.SnoozedUntil.IsZero() {
		ms := a.SnoozedUntil.UnixMilli()
		r.SnoozedUntil = &ms
	}
	return r
}

func (r alarmRecord) toAlarm() *domain.Alarm {
	a := &domain.Alarm{
		ID:                r.ID,
		Time:              r.Time,
		Enabled:           r.Enabled,
		Label:             r.Label,
		Repeat:            r.Repeat,
		Sound:             r.Sound,
		EarlyNotification: domain.DefaultEarlyNotification,
	}
	if r.CreatedAt != 0 {
		a.CreatedAt = time.UnixMilli(r.CreatedAt)
	}
	if r.SnoozedUntil != nil {
		a.SnoozedUntil = time.UnixMilli(*r.SnoozedUntil)
	}
	if r.EarlyNotification != nil {
		a.EarlyNotification = *r.EarlyNotification
	}
	if a.Sound == "" {
		a.Sound = domain.SoundDefault
	}
	return a
}

// toTimer rebuilds a timer. Saved timers always come back idle with their
// full duration and the bell sound, whatever state they were saved in.
func (r timerRecord) toTimer() *domain.Timer {
	d := time.Duration(r.Duration) * time.Second
	t := &domain.Timer{
		ID:        r.ID,
		Name:      r.Name,
		Duration:  d,
		Remaining: d,
		Status:    domain.TimerIdle,
		Sound:     domain.TimerSound,
	}
	if r.CreatedAt != 0 {
		t.CreatedAt = time.UnixMilli(r.CreatedAt)
	}
	return t
}

// SaveAlarms replaces the stored alarm list.
func (s *SQLite) SaveAlarms(ctx context.Context, alarms []*domain.Alarm) error {
	docs := make([]any, len(alarms))
	ids := make([]string, len(alarms))
	for i, a := range alarms {
		docs[i] = toAlarmRecord(a)
		ids[i] = a.ID
	}
	return s.replace(ctx, "alarms", ids, docs)
}

// SaveTimers replaces the stored timer list. Only the definition is kept.
func (s *SQLite) SaveTimers(ctx context.Context, timers []*domain.Timer) error {
	docs := make([]any, len(timers))
	ids := make([]string, len(timers))
	for i, t := range timers {
		docs[i] = timerRecord{
			ID:        t.ID,
			Name:      t.Name,
			Duration:  int64(t.Duration / time.Second),
			Sound:     t.Sound,
			CreatedAt: millis(t.CreatedAt),
		}
		ids[i] = t.ID
	}
	return s.replace(ctx, "timers", ids, docs)
}

// replace rewrites a whole table in one transaction. table is one of the
// fixed table names above, never user input.
func (s *SQLite) replace(ctx context.Context, table string, ids []string, docs []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table+" (id, position, data) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", table, ids[i], err)
		}
		if _, err := stmt.ExecContext(ctx, ids[i], i, string(data)); err != nil {
			return fmt.Errorf("inserting %s %s: %w", table, ids[i], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("saved %d %s", len(docs), table)
	return nil
}

// LoadAlarms returns the stored alarms in list order. Undecodable rows are
// skipped with a warning.
func (s *SQLite) LoadAlarms(ctx context.Context) ([]*domain.Alarm, error) {
	var out []*domain.Alarm
	err := s.scan(ctx, "alarms", func(id, data string) {
		var r alarmRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			s.log.Warn("skipping alarm %s: %v", id, err)
			return
		}
		out = append(out, r.toAlarm())
	})
	return out, err
}

// LoadTimers returns the stored timers in list order, all idle.
func (s *SQLite) LoadTimers(ctx context.Context) ([]*domain.Timer, error) {
	var out []*domain.Timer
	err := s.scan(ctx, "timers", func(id, data string) {
		var r timerRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			s.log.Warn("skipping timer %s: %v", id, err)
			return
		}
		if r.Duration < 1 {
			s.log.Warn("skipping timer %s: duration %ds", id, r.Duration)
			return
		}
		out = append(out, r.toTimer())
	})
	return out, err
}

func (s *SQLite) scan(ctx context.Context, table string, fn func(id, data string)) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM "+table+" ORDER BY position")
	if err != nil {
		return fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("scanning %s: %w", table, err)
		}
		fn(id, data)
	}
	return rows.Err()
}

// --- Settings ---

const settingsKey = "app"

// LoadSettings decodes the saved settings over defaults, so fields missing
// from an older document keep their default. With nothing saved it
// returns defaults unchanged.
func (s *SQLite) LoadSettings(ctx context.Context, defaults domain.Settings) (domain.Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM settings WHERE key = ?", settingsKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("querying settings: %w", err)
	}

	out := defaults
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		s.log.Warn("skipping unreadable settings: %v", err)
		return defaults, nil
	}
	return out, nil
}

// SaveSettings replaces the saved settings.
func (s *SQLite) SaveSettings(ctx context.Context, settings domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data`,
		settingsKey, string(data),
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// --- Push subscriptions ---

// ListSubscriptions returns every stored push endpoint.
func (s *SQLite) ListSubscriptions(ctx context.Context) ([]domain.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT endpoint, p256dh, auth FROM push_subscriptions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.PushSubscription
	for rows.Next() {
		var sub domain.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.P256dh, &sub.Auth); err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// AddSubscription stores or refreshes a push endpoint.
func (s *SQLite) AddSubscription(ctx context.Context, sub domain.PushSubscription) error {
	if sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
		return &domain.ValidationError{Field: "subscription", Reason: "endpoint and keys are required"}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (endpoint, p256dh, auth)
		VALUES (?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
		p256dh = excluded.p256dh,
		auth = excluded.auth`,
		sub.Endpoint, sub.P256dh, sub.Auth,
	)
	if err != nil {
		return fmt.Errorf("saving subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a push endpoint.
func (s *SQLite) DeleteSubscription(ctx context.Context, endpoint string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription %s: %w", endpoint, domain.ErrNotFound)
	}
	return nil
}
