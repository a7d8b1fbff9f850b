package alarm

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/domain"
)

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Format12Hour renders a clock time as "7:05 AM".
func Format12Hour(t domain.ClockTime) string {
	period := "AM"
	if t.Hour >= 12 {
		period = "PM"
	}
	h := t.Hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, t.Minute, period)
}

// RepeatText describes a repeat rule for listings.
func RepeatText(r domain.Repeat) string {
	switch r.Type {
	case domain.RepeatOnce:
		return "once"
	case domain.RepeatDaily:
		return "daily"
	case domain.RepeatWeekdays:
		return "Mon-Fri"
	case domain.RepeatCustom:
		if len(r.Days) == 0 {
			return "custom"
		}
		days := append([]int(nil), r.Days...)
		sort.Ints(days)
		names := make([]string, 0, len(days))
		for _, d := range days {
			if d >= 0 && d < len(weekdayNames) {
				names = append(names, weekdayNames[d])
			}
		}
		return strings.Join(names, ",")
	default:
		return "unknown"
	}
}

// UntilText describes how far away next is from now, e.g. "in 3h 12m".
// Returns "never" for a zero next.
func UntilText(now, next time.Time) string {
	if next.IsZero() {
		return "never"
	}
	d := next.Sub(now)
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)

	switch {
	case hours >= 24:
		return fmt.Sprintf("in %dd", hours/24)
	case hours > 0:
		return fmt.Sprintf("in %dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("in %dm", minutes)
	}
}
