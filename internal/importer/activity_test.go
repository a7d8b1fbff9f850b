package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

const schedule = `【晨間運動】06:30／07:00

【Standup】9:15/9:20
【Lunch】12:00／25:00／12:61
not a schedule line
【Empty】later／soon
`

func TestParse(t *testing.T) {
	res, err := Parse(strings.NewReader(schedule))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(res.Activities) != 3 {
		t.Fatalf("expected 3 activities, got %+v", res.Activities)
	}
	want := []struct {
		name  string
		times []domain.ClockTime
		line  int
	}{
		{"晨間運動", []domain.ClockTime{{Hour: 6, Minute: 30}, {Hour: 7, Minute: 0}}, 1},
		{"Standup", []domain.ClockTime{{Hour: 9, Minute: 15}, {Hour: 9, Minute: 20}}, 3},
		{"Lunch", []domain.ClockTime{{Hour: 12, Minute: 0}}, 4},
	}
	for i, w := range want {
		got := res.Activities[i]
		if got.Name != w.name || got.Line != w.line || len(got.Times) != len(w.times) {
			t.Fatalf("activity %d = %+v, want %+v", i, got, w)
		}
		for j := range w.times {
			if got.Times[j] != w.times[j] {
				t.Fatalf("activity %d time %d = %s, want %s", i, j, got.Times[j], w.times[j])
			}
		}
	}

	if res.OK() || len(res.Errors) != 2 || res.Errors[0].Line != 5 || res.Errors[1].Line != 6 {
		t.Fatalf("errors %+v", res.Errors)
	}
	if res.AlarmCount() != 5 {
		t.Fatalf("alarm count %d, want 5", res.AlarmCount())
	}
}

func TestAlarmsDefaults(t *testing.T) {
	res, _ := Parse(strings.NewReader("【Read】21:30"))
	alarms := res.Alarms()
	if len(alarms) != 1 {
		t.Fatalf("got %d alarms", len(alarms))
	}
	a := alarms[0]
	if a.Label != "Read" || !a.Enabled || a.Repeat.Type != domain.RepeatDaily || a.Sound != domain.SoundDefault {
		t.Fatalf("alarm %+v", a)
	}
	if a.EarlyNotification != (domain.EarlyNotification{Enabled: true, MinutesBefore: 3}) {
		t.Fatalf("early notification %+v", a.EarlyNotification)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("imported alarm invalid: %v", err)
	}
}

var errDiskFull = errors.New("disk full")

type mockAdder struct {
	mu     sync.Mutex
	added  []*domain.Alarm
	calls  int
	failAt int // 1-based call number; 0 never fails
}

func (m *mockAdder) AddAlarm(_ context.Context, a *domain.Alarm) (*domain.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls == m.failAt {
		return nil, errDiskFull
	}
	m.added = append(m.added, a)
	return a, nil
}

func TestImport(t *testing.T) {
	adder := &mockAdder{}
	im := New(adder, logger.New(logger.LevelOff, nil))

	res, n, err := im.Import(context.Background(), strings.NewReader(schedule))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 5 || len(adder.added) != 5 || len(res.Errors) != 2 {
		t.Fatalf("added %d (%d stored), errors %d", n, len(adder.added), len(res.Errors))
	}
}

func TestImportContinuesPastStoreError(t *testing.T) {
	adder := &mockAdder{failAt: 2}
	im := New(adder, logger.New(logger.LevelOff, nil))

	res, n, err := im.Import(context.Background(), strings.NewReader(schedule))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 4 || len(adder.added) != 4 {
		t.Fatalf("added %d (%d stored), want the other 4", n, len(adder.added))
	}

	// Two unparsable lines plus the rejected 07:00 alarm from line 1.
	if len(res.Errors) != 3 {
		t.Fatalf("errors %+v", res.Errors)
	}
	last := res.Errors[2]
	if last.Line != 1 || !errors.Is(last, errDiskFull) {
		t.Fatalf("store failure reported as %+v", last)
	}
	if !strings.Contains(last.Error(), "07:00") {
		t.Fatalf("error %q does not name the alarm", last.Error())
	}
}

func TestImportStopsWhenCancelled(t *testing.T) {
	adder := &mockAdder{}
	im := New(adder, logger.New(logger.LevelOff, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, n, err := im.Import(ctx, strings.NewReader(schedule))
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Fatalf("got n=%d err=%v", n, err)
	}
}
