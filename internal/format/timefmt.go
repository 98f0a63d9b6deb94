// ABOUTME: Relative time labels and event status derivation.
// ABOUTME: Both depend on the wall clock, which callers pass in explicitly.
package format

import (
	"fmt"
	"time"

	"github.com/2389-research/circle/internal/models"
)

// RelativeTime describes how long ago t was, relative to now.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "less than an hour ago"
	}
	d := now.Sub(t)
	hours := int(d.Hours())
	if d < 0 || hours < 1 {
		return "less than an hour ago"
	}
	if hours < 24 {
		return plural(hours, "hour")
	}
	days := hours / 24
	if days < 30 {
		return plural(days, "day")
	}
	return t.Format("Jan 2, 2006")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// EventStatusAt derives an event's status from its scheduled time.
// An event within 24 hours of now counts as in progress whether it has
// started or not; cancellation is never derived here.
func EventStatusAt(eventAt, now time.Time) models.EventStatus {
	delta := eventAt.Sub(now)
	switch {
	case delta < 0:
		return models.EventCompleted
	case delta <= 24*time.Hour:
		return models.EventInProgress
	default:
		return models.EventUpcoming
	}
}
