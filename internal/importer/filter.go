package importer

import (
	"time"

	"github.com/beekhof/calendar-import/internal/event"
)

// DateRange selects events by the calendar day they start on. Zero bounds
// are open.
type DateRange struct {
	// Start is inclusive.
	Start time.Time
	// End is exclusive.
	End time.Time
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether the day d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	day := truncateDay(d)
	if !r.Start.IsZero() && day.Before(truncateDay(r.Start)) {
		return false
	}
	if !r.End.IsZero() && !day.Before(truncateDay(r.End)) {
		return false
	}
	return true
}

// FilterByDate keeps the events whose start day lies in r, in order.
func FilterByDate(events []*event.Event, r DateRange) []*event.Event {
	if r.IsZero() {
		return events
	}
	out := make([]*event.Event, 0, len(events))
	for _, ev := range events {
		if ev.Start.IsZero() || r.Contains(ev.Start.Day()) {
			out = append(out, ev)
		}
	}
	return out
}

// Limit keeps at most n events. n <= 0 means no limit.
func Limit(events []*event.Event, n int) []*event.Event {
	if n <= 0 || len(events) <= n {
		return events
	}
	return events[:n]
}

// AddSelf returns events with email listed as an accepted attendee. Events
// that already list it are returned as copies unchanged.
func AddSelf(events []*event.Event, email string) []*event.Event {
	if email == "" {
		return events
	}
	out := make([]*event.Event, len(events))
	for i, ev := range events {
		out[i] = ev.WithAttendee(email)
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
