package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/alarm"
	"github.com/hammamikhairi/ottoclock/internal/command"
	"github.com/hammamikhairi/ottoclock/internal/display"
	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/engine"
	"github.com/hammamikhairi/ottoclock/internal/importer"
	"github.com/hammamikhairi/ottoclock/internal/logger"
	"github.com/hammamikhairi/ottoclock/internal/timer"
)

type cliApp struct {
	engine   *engine.Engine
	parser   *command.Parser
	importer *importer.Importer
	log      *logger.Logger
	ui       *display.UI
}

func (a *cliApp) run(ctx context.Context) {
	a.ui.PrintChat("Ready.")
	a.status(ctx)

	uiCh := a.ui.InputChan()
	for {
		var input string
		var ok bool

		select {
		case <-ctx.Done():
			return
		case input, ok = <-uiCh:
			if !ok {
				return
			}
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		cmd, err := a.parser.Parse(input)
		if err != nil {
			a.ui.PrintUrgent(err.Error())
			continue
		}
		a.log.Debug("command: %s (raw=%q)", cmd.Kind, cmd.Raw)
		if !a.handle(ctx, cmd) {
			return
		}
	}
}

// handle runs one command and reports whether the loop should continue.
func (a *cliApp) handle(ctx context.Context, cmd *command.Command) bool {
	switch cmd.Kind {
	case command.Help:
		a.showHelp()
	case command.Quit:
		a.ui.PrintChat("Bye.")
		return false
	case command.Status:
		a.status(ctx)
	case command.Dismiss:
		if n := a.engine.Dismiss(ctx); n == 0 {
			a.ui.PrintHint("Nothing to dismiss.")
		} else {
			a.ui.PrintChat(fmt.Sprintf("Dismissed %d alert(s).", n))
		}
	case command.Snooze:
		a.snooze(ctx, cmd)
	case command.Import:
		a.importSchedule(ctx, cmd.Path)

	case command.AlarmList:
		a.listAlarms(ctx)
	case command.AlarmAdd:
		added, err := a.engine.AddAlarm(ctx, cmd.Alarm)
		if a.report(err) {
			a.ui.PrintChat("Added " + describeAlarm(added, time.Now()))
		}
	case command.AlarmEdit:
		a.withAlarm(ctx, cmd.Ref, func(id string) error {
			al, err := a.engine.UpdateAlarm(ctx, id, cmd.Patch.Apply)
			if err == nil {
				a.ui.PrintChat("Updated " + describeAlarm(al, time.Now()))
			}
			return err
		})
	case command.AlarmToggle:
		a.withAlarm(ctx, cmd.Ref, func(id string) error {
			al, err := a.engine.ToggleAlarm(ctx, id)
			if err == nil {
				a.ui.PrintChat(fmt.Sprintf("Alarm %s is %s.", al.Time, onOff(al.Enabled)))
			}
			return err
		})
	case command.AlarmDelete:
		a.withAlarm(ctx, cmd.Ref, func(id string) error {
			err := a.engine.DeleteAlarm(ctx, id)
			if err == nil {
				a.ui.PrintChat("Alarm deleted.")
			}
			return err
		})
	case command.AlarmClear:
		if a.report(a.engine.ClearAlarms(ctx)) {
			a.ui.PrintChat("All alarms deleted.")
		}

	case command.TimerList:
		a.listTimers(ctx)
	case command.TimerAdd:
		t, err := a.engine.AddTimer(ctx, cmd.Name, cmd.Duration)
		if a.report(err) {
			a.ui.PrintChat(fmt.Sprintf("Added timer %q (%s). Start it with 'timer start'.", t.Name, timer.DurationText(t.Duration)))
		}
	case command.TimerStart:
		a.withTimer(ctx, cmd.Ref, func(id string) error {
			t, err := a.engine.StartTimer(ctx, id)
			if err == nil {
				a.ui.PrintChat(fmt.Sprintf("Timer %q running, %s left.", t.Name, timer.FormatClock(t.Remaining)))
			}
			return err
		})
	case command.TimerPause:
		a.withTimer(ctx, cmd.Ref, func(id string) error {
			t, err := a.engine.PauseTimer(ctx, id)
			if err == nil {
				a.ui.PrintChat(fmt.Sprintf("Timer %q paused at %s.", t.Name, timer.FormatClock(t.Remaining)))
			}
			return err
		})
	case command.TimerReset:
		a.withTimer(ctx, cmd.Ref, func(id string) error {
			t, err := a.engine.ResetTimer(ctx, id)
			if err == nil {
				a.ui.PrintChat(fmt.Sprintf("Timer %q reset.", t.Name))
			}
			return err
		})
	case command.TimerDelete:
		a.withTimer(ctx, cmd.Ref, func(id string) error {
			err := a.engine.DeleteTimer(ctx, id)
			if err == nil {
				a.ui.PrintChat("Timer deleted.")
			}
			return err
		})
	case command.TimerPresets:
		a.ui.PrintHeader("Presets:")
		for _, p := range domain.TimerPresets {
			a.ui.PrintItem(fmt.Sprintf("%-12s %s", p.Name, timer.DurationText(p.Duration)))
		}
	case command.TimerPreset:
		t, err := a.engine.AddPreset(ctx, cmd.Name)
		if a.report(err) {
			a.ui.PrintChat(fmt.Sprintf("Timer %q running, %s left.", t.Name, timer.FormatClock(t.Remaining)))
		}

	case command.VolumeShow:
		a.ui.PrintChat(fmt.Sprintf("Volume %.0f%%.", a.engine.Volume()*100))
	case command.VolumeSet:
		if a.report(a.engine.SetVolume(ctx, float64(cmd.Percent)/100)) {
			a.ui.PrintChat(fmt.Sprintf("Volume set to %d%%.", cmd.Percent))
		}

	case command.Unknown:
		a.ui.PrintHint(fmt.Sprintf("Unknown command %q. Type 'help' for the list.", cmd.Raw))
	}
	return true
}

// report prints err, if any, and reports whether the command succeeded.
func (a *cliApp) report(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.ui.PrintUrgent("Not found: " + err.Error())
	case errors.Is(err, domain.ErrInvalid), errors.Is(err, domain.ErrNotRunning):
		a.ui.PrintUrgent(err.Error())
	default:
		a.log.Error("command failed: %v", err)
		a.ui.PrintUrgent("Something went wrong: " + err.Error())
	}
	return false
}

func (a *cliApp) withAlarm(ctx context.Context, ref string, fn func(id string) error) {
	alarms, err := a.engine.Alarms(ctx)
	if !a.report(err) {
		return
	}
	ids := make([]string, len(alarms))
	for i, al := range alarms {
		ids[i] = al.ID
	}
	id, err := engine.Resolve(ref, ids)
	if !a.report(err) {
		return
	}
	a.report(fn(id))
}

func (a *cliApp) withTimer(ctx context.Context, ref string, fn func(id string) error) {
	timers, err := a.engine.Timers(ctx)
	if !a.report(err) {
		return
	}
	ids := make([]string, len(timers))
	for i, t := range timers {
		ids[i] = t.ID
	}
	id, err := engine.Resolve(ref, ids)
	if !a.report(err) {
		return
	}
	a.report(fn(id))
}

func (a *cliApp) snooze(ctx context.Context, cmd *command.Command) {
	do := func(id string) error {
		al, err := a.engine.Snooze(ctx, id, cmd.Minutes)
		if err == nil {
			a.ui.PrintChat(fmt.Sprintf("Snoozed %s until %s.", al.Time, al.SnoozedUntil.Format("15:04")))
		}
		return err
	}
	if cmd.Ref != "" {
		a.withAlarm(ctx, cmd.Ref, do)
		return
	}
	if err := do(""); errors.Is(err, engine.ErrNothingRinging) {
		a.ui.PrintHint("No alarm is ringing. Use 'snooze <alarm> [minutes]'.")
	} else {
		a.report(err)
	}
}

func (a *cliApp) importSchedule(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Cannot open %s: %v", path, err))
		return
	}
	defer f.Close()

	res, n, err := a.importer.Import(ctx, f)
	if !a.report(err) {
		return
	}
	a.ui.PrintChat(fmt.Sprintf("Imported %d alarm(s) from %d activities.", n, len(res.Activities)))
	for _, e := range res.Errors {
		a.ui.PrintHint(e.Error())
	}
}

func (a *cliApp) status(ctx context.Context) {
	for _, al := range a.engine.Alerts() {
		a.ui.PrintUrgent(fmt.Sprintf("[%s] %s", al.Kind, al.Message))
	}
	a.listAlarms(ctx)
	a.listTimers(ctx)
}

func (a *cliApp) listAlarms(ctx context.Context) {
	alarms, err := a.engine.Alarms(ctx)
	if !a.report(err) {
		return
	}
	if len(alarms) == 0 {
		a.ui.PrintHint("No alarms. Add one with 'alarm add 07:00 Wake up'.")
		return
	}
	now := time.Now()
	a.ui.PrintHeader(fmt.Sprintf("Alarms (%d):", len(alarms)))
	for i, al := range alarms {
		a.ui.PrintItem(fmt.Sprintf("%d. %s", i+1, describeAlarm(al, now)))
	}
}

func (a *cliApp) listTimers(ctx context.Context) {
	timers, err := a.engine.Timers(ctx)
	if !a.report(err) {
		return
	}
	if len(timers) == 0 {
		return
	}
	now := time.Now()
	a.ui.PrintHeader(fmt.Sprintf("Timers (%d):", len(timers)))
	for i, t := range timers {
		a.ui.PrintItem(fmt.Sprintf("%d. %-14s %s / %s  %s (%.0f%%)",
			i+1, t.Name,
			timer.FormatClock(timer.Remaining(t, now)), timer.FormatClock(t.Duration),
			t.Status, timer.Progress(t)))
	}
}

func describeAlarm(al *domain.Alarm, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) %s", al.Time, alarm.Format12Hour(al.Time), alarm.RepeatText(al.Repeat))
	if al.Label != "" {
		fmt.Fprintf(&b, " %q", al.Label)
	}
	if !al.Enabled {
		b.WriteString(" [off]")
		return b.String()
	}
	if al.EarlyNotification.Enabled {
		fmt.Fprintf(&b, " early %dm", al.EarlyNotification.MinutesBefore)
	}
	if al.Snoozed(now.UnixMilli()) {
		fmt.Fprintf(&b, " snoozed until %s", al.SnoozedUntil.Format("15:04"))
	}
	fmt.Fprintf(&b, ", rings %s", alarm.UntilText(now, alarm.NextRing(al, now)))
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (a *cliApp) showHelp() {
	a.ui.PrintHeader("Alarms:")
	a.ui.PrintItem("  alarm add 07:30 [once|daily|weekdays|mon,wed] [sound=gentle] [early=5|off] [label]")
	a.ui.PrintItem("  alarms                 List alarms")
	a.ui.PrintItem("  alarm edit <n> [time] [repeat] [sound=..] [early=..] [label]")
	a.ui.PrintItem("  alarm toggle <n>       Turn an alarm on or off")
	a.ui.PrintItem("  alarm rm <n>           Delete an alarm")
	a.ui.PrintItem("  alarm clear            Delete every alarm")
	a.ui.PrintItem("  snooze [n] [minutes]   Snooze the ringing alarm, or alarm n")
	a.ui.PrintItem("  import <file>          Import 【name】HH:MM／HH:MM schedules")
	a.ui.Println("")
	a.ui.PrintHeader("Timers:")
	a.ui.PrintItem("  timer add 25m [name]   Add a timer (25m, 1h30m, 90s, 25:00)")
	a.ui.PrintItem("  timers                 List timers")
	a.ui.PrintItem("  timer start|pause|reset|rm <n>")
	a.ui.PrintItem("  presets / preset <name> List presets or start one")
	a.ui.Println("")
	a.ui.PrintHeader("General:")
	a.ui.PrintItem("  dismiss / ok           Silence and clear alerts")
	a.ui.PrintItem("  status                 Alerts, alarms and timers")
	a.ui.PrintItem("  volume [0-100]         Show or set the alarm volume")
	a.ui.PrintItem("  help / quit")
	a.ui.PrintHint("<n> is the list number or the start of the id.")
}
