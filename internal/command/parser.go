// Package command parses what the user types at the prompt.
package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

// Kind identifies a command.
type Kind int

const (
	Unknown Kind = iota
	Help
	Quit
	Status
	Dismiss
	Snooze
	Import
	AlarmList
	AlarmAdd
	AlarmToggle
	AlarmDelete
	AlarmClear
	TimerList
	TimerAdd
	TimerStart
	TimerPause
	TimerReset
	TimerDelete
	TimerPresets
	TimerPreset
	AlarmEdit
	VolumeShow
	VolumeSet
)

var kindNames = map[Kind]string{
	Unknown:      "unknown",
	Help:         "help",
	Quit:         "quit",
	Status:       "status",
	Dismiss:      "dismiss",
	Snooze:       "snooze",
	Import:       "import",
	AlarmList:    "alarm_list",
	AlarmAdd:     "alarm_add",
	AlarmToggle:  "alarm_toggle",
	AlarmDelete:  "alarm_delete",
	AlarmClear:   "alarm_clear",
	TimerList:    "timer_list",
	TimerAdd:     "timer_add",
	TimerStart:   "timer_start",
	TimerPause:   "timer_pause",
	TimerReset:   "timer_reset",
	TimerDelete:  "timer_delete",
	TimerPresets: "timer_presets",
	TimerPreset:  "timer_preset",
	AlarmEdit:    "alarm_edit",
	VolumeShow:   "volume_show",
	VolumeSet:    "volume_set",
}

// String returns a human-readable command kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Command is one parsed line. Which fields are set depends on Kind.
type Command struct {
	Kind     Kind
	Ref      string        // alarm or timer reference: position, id or id prefix
	Alarm    *domain.Alarm // AlarmAdd
	Patch    *AlarmPatch   // AlarmEdit
	Name     string        // TimerAdd, TimerPreset
	Duration time.Duration // TimerAdd
	Minutes  int           // Snooze, 0 = default
	Path     string        // Import
	Percent  int           // VolumeSet, 0 to 100
	Raw      string
}

// Parser matches input against keyword patterns.
type Parser struct {
	log   *logger.Logger
	rules []rule
}

type rule struct {
	re    *regexp.Regexp
	build func(m []string) (*Command, error)
}

func simple(k Kind) func([]string) (*Command, error) {
	return func([]string) (*Command, error) { return &Command{Kind: k}, nil }
}

func withRef(k Kind) func([]string) (*Command, error) {
	return func(m []string) (*Command, error) { return &Command{Kind: k, Ref: m[1]}, nil }
}

// NewParser creates a command parser.
func NewParser(log *logger.Logger) *Parser {
	p := &Parser{log: log}
	p.rules = []rule{
		{regexp.MustCompile(`(?i)^(help|h|\?)$`), simple(Help)},
		{regexp.MustCompile(`(?i)^(quit|exit|q)$`), simple(Quit)},
		{regexp.MustCompile(`(?i)^(status|st|now)$`), simple(Status)},
		{regexp.MustCompile(`(?i)^(dismiss|ok|stop|d)$`), simple(Dismiss)},
		{regexp.MustCompile(`(?i)^(?:snooze|z)(?:\s+(.+))?$`), parseSnooze},
		{regexp.MustCompile(`(?i)^(?:volume|vol)(?:\s+(\S+))?$`), parseVolume},
		{regexp.MustCompile(`(?i)^import\s+(.+)$`), func(m []string) (*Command, error) {
			return &Command{Kind: Import, Path: strings.TrimSpace(m[1])}, nil
		}},

		{regexp.MustCompile(`(?i)^(alarms|alarm|alarm\s+(list|ls)|al)$`), simple(AlarmList)},
		{regexp.MustCompile(`(?i)^alarm\s+(?:add|new|set)\s+(.+)$`), parseAlarmAdd},
		{regexp.MustCompile(`(?i)^alarm\s+(?:edit|change|e)\s+(\S+)(?:\s+(.+))?$`), parseAlarmEdit},
		{regexp.MustCompile(`(?i)^alarm\s+(?:toggle|t)\s+(\S+)$`), withRef(AlarmToggle)},
		{regexp.MustCompile(`(?i)^alarm\s+(?:delete|del|rm)\s+(\S+)$`), withRef(AlarmDelete)},
		{regexp.MustCompile(`(?i)^alarm\s+clear$`), simple(AlarmClear)},

		{regexp.MustCompile(`(?i)^(timers|timer|timer\s+(list|ls)|tl)$`), simple(TimerList)},
		{regexp.MustCompile(`(?i)^timer\s+(?:add|new|set)\s+(.+)$`), parseTimerAdd},
		{regexp.MustCompile(`(?i)^timer\s+(?:start|resume|go)\s+(\S+)$`), withRef(TimerStart)},
		{regexp.MustCompile(`(?i)^timer\s+pause\s+(\S+)$`), withRef(TimerPause)},
		{regexp.MustCompile(`(?i)^timer\s+reset\s+(\S+)$`), withRef(TimerReset)},
		{regexp.MustCompile(`(?i)^timer\s+(?:delete|del|rm)\s+(\S+)$`), withRef(TimerDelete)},
		{regexp.MustCompile(`(?i)^(?:timer\s+)?presets?$`), simple(TimerPresets)},
		{regexp.MustCompile(`(?i)^(?:timer\s+)?preset\s+(.+)$`), func(m []string) (*Command, error) {
			return &Command{Kind: TimerPreset, Name: strings.TrimSpace(m[1])}, nil
		}},
	}
	return p
}

// Parse converts a line into a command. Unrecognised input yields Unknown
// with no error; recognised commands with bad arguments return an error
// that matches domain.ErrInvalid.
func (p *Parser) Parse(input string) (*Command, error) {
	trimmed := strings.Join(strings.Fields(input), " ")
	if trimmed == "" {
		return &Command{Kind: Unknown}, nil
	}
	p.log.Debug("parsing input: %q", trimmed)

	for _, r := range p.rules {
		m := r.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		cmd, err := r.build(m)
		if err != nil {
			return nil, err
		}
		cmd.Raw = trimmed
		p.log.Debug("matched command: %s", cmd.Kind)
		return cmd, nil
	}

	p.log.Debug("no match, returning unknown command")
	return &Command{Kind: Unknown, Raw: trimmed}, nil
}

func parseSnooze(m []string) (*Command, error) {
	cmd := &Command{Kind: Snooze}
	args := strings.Fields(m[1])
	switch len(args) {
	case 0:
	case 1:
		// A bare number is minutes; anything else is an alarm reference.
		if n, ok := snoozeMinutes(args[0]); ok {
			cmd.Minutes = n
		} else {
			cmd.Ref = args[0]
		}
	case 2:
		n, ok := snoozeMinutes(args[1])
		if !ok {
			return nil, &domain.ValidationError{Field: "snooze", Reason: fmt.Sprintf("%q is not a number of minutes", args[1])}
		}
		cmd.Ref, cmd.Minutes = args[0], n
	default:
		return nil, &domain.ValidationError{Field: "snooze", Reason: "usage: snooze [alarm] [minutes]"}
	}
	return cmd, nil
}

// snoozeMinutes accepts "10" and "10m".
func snoozeMinutes(s string) (int, bool) {
	s = strings.TrimSuffix(strings.ToLower(s), "m")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 60 {
		return 0, false
	}
	return n, true
}

func parseTimerAdd(m []string) (*Command, error) {
	args := strings.Fields(m[1])
	d, err := ParseDuration(args[0])
	if err != nil {
		return nil, err
	}
	return &Command{Kind: TimerAdd, Duration: d, Name: strings.Join(args[1:], " ")}, nil
}

var clockDurRe = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{2})$`)

// ParseDuration reads a timer length. It accepts Go durations ("1h30m",
// "90s"), clock notation ("25:00", "1:30:00") and a bare number of minutes.
// The result is whole seconds, at least one.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var d time.Duration
	switch {
	case clockDurRe.MatchString(s):
		g := clockDurRe.FindStringSubmatch(s)
		h, _ := strconv.Atoi(g[1]) // "" without hours
		mins, _ := strconv.Atoi(g[2])
		secs, _ := strconv.Atoi(g[3])
		if secs > 59 || (g[1] != "" && mins > 59) {
			return 0, &domain.ValidationError{Field: "duration", Reason: fmt.Sprintf("%q is not a valid clock duration", s)}
		}
		d = time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second
	default:
		if n, err := strconv.Atoi(s); err == nil {
			d = time.Duration(n) * time.Minute
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, &domain.ValidationError{Field: "duration", Reason: fmt.Sprintf("%q is not a duration", s)}
		}
		d = parsed
	}
	if d < time.Second {
		return 0, &domain.ValidationError{Field: "duration", Reason: "must be at least 1 second"}
	}
	return d.Truncate(time.Second), nil
}

var (
	clock24Re = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	clock12Re = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm)$`)
)

// ParseClock reads "7:30", "07:30", "7am" or "7:30pm".
func ParseClock(s string) (domain.ClockTime, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	bad := &domain.ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not a time (use HH:MM or 7:30am)", s)}

	if g := clock24Re.FindStringSubmatch(s); g != nil {
		h, _ := strconv.Atoi(g[1])
		m, _ := strconv.Atoi(g[2])
		if h > 23 || m > 59 {
			return domain.ClockTime{}, bad
		}
		return domain.ClockTime{Hour: h, Minute: m}, nil
	}
	if g := clock12Re.FindStringSubmatch(s); g != nil {
		h, _ := strconv.Atoi(g[1])
		m := 0
		if g[2] != "" {
			m, _ = strconv.Atoi(g[2])
		}
		if h < 1 || h > 12 || m > 59 {
			return domain.ClockTime{}, bad
		}
		h %= 12
		if g[3] == "pm" {
			h += 12
		}
		return domain.ClockTime{Hour: h, Minute: m}, nil
	}
	return domain.ClockTime{}, bad
}

var dayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// parseDays reads "mon,wed,fri". Any prefix of a day name of at least
// three letters works.
func parseDays(s string) ([]int, bool) {
	var days []int
	seen := map[int]bool{}
	for _, part := range strings.Split(s, ",") {
		d := dayOf(strings.TrimSpace(part))
		if d < 0 {
			return nil, false
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	return days, len(days) > 0
}

func dayOf(s string) int {
	if len(s) < 3 {
		return -1
	}
	for i, name := range dayNames {
		if strings.HasPrefix(name, s) {
			return i
		}
	}
	return -1
}

var soundNames = map[string]string{
	"default": domain.SoundDefault,
	"gentle":  domain.SoundGentle,
	"classic": domain.SoundClassic,
}

// AlarmPatch is what an alarm line sets. Nil fields are left alone.
type AlarmPatch struct {
	Time   *domain.ClockTime
	Repeat *domain.Repeat
	Sound  string                    // "" keeps the sound
	Early  *domain.EarlyNotification // Enabled false turns it off and keeps the lead time
	Label  *string
}

// Empty reports whether the patch changes nothing.
func (p *AlarmPatch) Empty() bool {
	return p.Time == nil && p.Repeat == nil && p.Sound == "" && p.Early == nil && p.Label == nil
}

// Apply writes the patch onto a. An edited alarm is no longer snoozed.
func (p *AlarmPatch) Apply(a *domain.Alarm) {
	if p.Time != nil {
		a.Time = *p.Time
	}
	if p.Repeat != nil {
		a.Repeat = domain.Repeat{Type: p.Repeat.Type, Days: append([]int(nil), p.Repeat.Days...)}
	}
	if p.Sound != "" {
		a.Sound = p.Sound
	}
	if p.Early != nil {
		if p.Early.Enabled {
			a.EarlyNotification = *p.Early
		} else {
			a.EarlyNotification.Enabled = false
		}
	}
	if p.Label != nil {
		a.Label = *p.Label
	}
	a.SnoozedUntil = time.Time{}
}

// parseAlarmOptions reads "[once|daily|weekdays|mon,wed] [sound=NAME]
// [early=3|5|10|off] [label=TEXT] [label...]" in any order. Words that
// aren't options form the label; a lone day name only counts as a repeat
// before the label starts.
func parseAlarmOptions(args []string) (*AlarmPatch, error) {
	p := &AlarmPatch{}
	var label []string
	labelSet := false
	for _, arg := range args {
		lower := strings.ToLower(arg)
		switch {
		case lower == "once" || lower == "daily" || lower == "weekdays":
			p.Repeat = &domain.Repeat{Type: domain.RepeatType(lower)}
		case strings.HasPrefix(lower, "sound="):
			id, ok := soundNames[strings.TrimPrefix(lower, "sound=")]
			if !ok {
				return nil, &domain.ValidationError{Field: "sound", Reason: fmt.Sprintf("%q is not default, gentle or classic", arg)}
			}
			p.Sound = id
		case strings.HasPrefix(lower, "early="):
			v := strings.TrimSuffix(strings.TrimPrefix(lower, "early="), "m")
			if v == "off" || v == "no" {
				p.Early = &domain.EarlyNotification{}
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, &domain.ValidationError{Field: "early", Reason: fmt.Sprintf("%q is not 3, 5, 10 or off", arg)}
			}
			p.Early = &domain.EarlyNotification{Enabled: true, MinutesBefore: n}
		case strings.HasPrefix(lower, "label="):
			labelSet = true
			if v := arg[len("label="):]; v != "" {
				label = append(label, v)
			}
		default:
			if days, ok := parseDays(lower); ok && (strings.Contains(lower, ",") || len(label) == 0) {
				p.Repeat = &domain.Repeat{Type: domain.RepeatCustom, Days: days}
				continue
			}
			labelSet = true
			label = append(label, arg)
		}
	}
	if labelSet {
		text := strings.Join(label, " ")
		p.Label = &text
	}
	return p, nil
}

// parseAlarmAdd reads "<time> [options...]". Unset options take the same
// defaults as a new alarm in the form: daily, default sound, early warning
// three minutes before.
func parseAlarmAdd(m []string) (*Command, error) {
	args := strings.Fields(m[1])
	t, err := ParseClock(args[0])
	if err != nil {
		return nil, err
	}
	patch, err := parseAlarmOptions(args[1:])
	if err != nil {
		return nil, err
	}
	a := &domain.Alarm{
		Time:              t,
		Enabled:           true,
		Repeat:            domain.Repeat{Type: domain.RepeatDaily},
		Sound:             domain.SoundDefault,
		EarlyNotification: domain.DefaultEarlyNotification,
	}
	patch.Apply(a)

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &Command{Kind: AlarmAdd, Alarm: a}, nil
}

// parseAlarmEdit reads "<ref> [time] [options...]". Only what is given
// changes; the rest of the alarm stays as it is.
func parseAlarmEdit(m []string) (*Command, error) {
	args := strings.Fields(m[2])
	patch := &AlarmPatch{}
	if len(args) > 0 {
		if t, err := ParseClock(args[0]); err == nil {
			patch.Time = &t
			args = args[1:]
		}
	}
	opts, err := parseAlarmOptions(args)
	if err != nil {
		return nil, err
	}
	opts.Time = patch.Time
	if opts.Empty() {
		return nil, &domain.ValidationError{Field: "edit", Reason: "nothing to change (give a time, repeat, sound=, early= or label)"}
	}
	if opts.Early != nil && opts.Early.Enabled && !validLead(opts.Early.MinutesBefore) {
		return nil, &domain.ValidationError{Field: "early", Reason: fmt.Sprintf("%d is not 3, 5 or 10", opts.Early.MinutesBefore)}
	}
	return &Command{Kind: AlarmEdit, Ref: m[1], Patch: opts}, nil
}

func validLead(n int) bool {
	for _, v := range domain.EarlyNotificationMinutes {
		if v == n {
			return true
		}
	}
	return false
}

// parseVolume reads "volume" (show) or "volume 40" / "volume 40%".
func parseVolume(m []string) (*Command, error) {
	if m[1] == "" {
		return &Command{Kind: VolumeShow}, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(m[1], "%"))
	if err != nil || n < 0 || n > 100 {
		return nil, &domain.ValidationError{Field: "volume", Reason: fmt.Sprintf("%q is not a level from 0 to 100", m[1])}
	}
	return &Command{Kind: VolumeSet, Percent: n}, nil
}
