// Package importer turns pasted activity schedules into daily alarms.
//
// Each line has the form
//
//	【Activity name】HH:MM／HH:MM／HH:MM
//
// where the full-width slash and an ASCII "/" both separate times. Every
// valid time becomes one daily alarm labelled with the activity name.
package importer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

var (
	lineRe  = regexp.MustCompile(`^【(.+?)】(.+)$`)
	timeRe  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	splitRe = regexp.MustCompile(`[／/]`)
)

// Activity is one parsed schedule line.
type Activity struct {
	Name  string
	Times []domain.ClockTime
	Line  int // 1-based
}

// LineError reports a line that could not be parsed, or one of its
// alarms that could not be added (Err set).
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e LineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: adding %s: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("line %d: cannot parse %q", e.Line, e.Text)
}

func (e LineError) Unwrap() error { return e.Err }

// Result is everything parsed from one schedule.
type Result struct {
	Activities []Activity
	Errors     []LineError
}

// OK reports whether every non-empty line parsed.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// AlarmCount is the number of alarms the schedule produces.
func (r Result) AlarmCount() int {
	n := 0
	for _, a := range r.Activities {
		n += len(a.Times)
	}
	return n
}

// Alarms builds one daily alarm per activity time, with the default sound
// and a three-minute early warning.
func (r Result) Alarms() []*domain.Alarm {
	out := make([]*domain.Alarm, 0, r.AlarmCount())
	for _, a := range r.Activities {
		for _, t := range a.Times {
			out = append(out, newAlarm(a.Name, t))
		}
	}
	return out
}

func newAlarm(label string, t domain.ClockTime) *domain.Alarm {
	return &domain.Alarm{
		Time:              t,
		Enabled:           true,
		Label:             label,
		Repeat:            domain.Repeat{Type: domain.RepeatDaily},
		Sound:             domain.SoundDefault,
		EarlyNotification: domain.DefaultEarlyNotification,
	}
}

// Parse reads a schedule. Blank lines are skipped. A line with no valid
// time is reported in Result.Errors; invalid times on an otherwise valid
// line are dropped.
func Parse(r io.Reader) (Result, error) {
	var res Result
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		a, ok := parseLine(line)
		if !ok {
			res.Errors = append(res.Errors, LineError{Line: n, Text: line})
			continue
		}
		a.Line = n
		res.Activities = append(res.Activities, a)
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("reading schedule: %w", err)
	}
	return res, nil
}

func parseLine(line string) (Activity, bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Activity{}, false
	}
	a := Activity{Name: strings.TrimSpace(m[1])}
	for _, tok := range splitRe.Split(m[2], -1) {
		tm := timeRe.FindStringSubmatch(strings.TrimSpace(tok))
		if tm == nil {
			continue
		}
		hour, _ := strconv.Atoi(tm[1])
		minute, _ := strconv.Atoi(tm[2])
		if hour > 23 || minute > 59 {
			continue
		}
		a.Times = append(a.Times, domain.ClockTime{Hour: hour, Minute: minute})
	}
	if len(a.Times) == 0 {
		return Activity{}, false
	}
	return a, true
}

// AlarmAdder is where imported alarms go.
type AlarmAdder interface {
	AddAlarm(ctx context.Context, a *domain.Alarm) (*domain.Alarm, error)
}

// Importer parses schedules and adds the resulting alarms.
type Importer struct {
	alarms AlarmAdder
	log    *logger.Logger
}

// New creates an importer.
func New(alarms AlarmAdder, log *logger.Logger) *Importer {
	return &Importer{alarms: alarms, log: log}
}

// Import parses r and adds every alarm it describes. Neither a line that
// fails to parse nor an alarm the store rejects stops the import: both are
// appended to Result.Errors and the rest of the schedule is still added.
// Alarms added before a failure stay in place. The count of alarms
// actually added is returned alongside; err is only set when the schedule
// can't be read or ctx is done.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, int, error) {
	res, err := Parse(r)
	if err != nil {
		return res, 0, err
	}
	added := 0
	for _, act := range res.Activities {
		for _, t := range act.Times {
			if err := ctx.Err(); err != nil {
				return res, added, err
			}
			if _, err := im.alarms.AddAlarm(ctx, newAlarm(act.Name, t)); err != nil {
				res.Errors = append(res.Errors, LineError{Line: act.Line, Text: fmt.Sprintf("%s %s", act.Name, t), Err: err})
				continue
			}
			added++
		}
	}
	for _, e := range res.Errors {
		im.log.Warn("import: %v", e)
	}
	im.log.Info("imported %d alarm(s) from %d activities", added, len(res.Activities))
	return res, added, nil
}
