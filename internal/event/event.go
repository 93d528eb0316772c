// Package event defines the destination-agnostic representation of an
// imported calendar entry.
package event

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// TimeSpec is either a calendar date (all-day) or an instant in a named zone.
type TimeSpec struct {
	// Date is set for all-day values; only its year, month and day are used.
	Date    time.Time
	AllDay  bool
	Instant time.Time
	ZoneID  string
}

// DateOnly builds an all-day TimeSpec.
func DateOnly(d time.Time) TimeSpec {
	return TimeSpec{Date: time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), AllDay: true}
}

// At builds a timed TimeSpec.
func At(instant time.Time, zoneID string) TimeSpec {
	return TimeSpec{Instant: instant, ZoneID: zoneID}
}

// IsZero reports whether t carries neither a date nor an instant.
func (t TimeSpec) IsZero() bool {
	return !t.AllDay && t.Instant.IsZero()
}

// Day returns the calendar day the value falls on: the date itself for
// all-day values, otherwise the date of the instant in its own zone.
func (t TimeSpec) Day() time.Time {
	if t.AllDay {
		return t.Date
	}
	d := t.Instant
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// DateString formats an all-day value as YYYY-MM-DD.
func (t TimeSpec) DateString() string {
	return t.Date.Format(dateLayout)
}

// String renders the value the way it is sent to destinations.
func (t TimeSpec) String() string {
	if t.AllDay {
		return t.DateString()
	}
	return t.Instant.Format(time.RFC3339)
}

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusTentative Status = "tentative"
	StatusCancelled Status = "cancelled"
)

type Transparency string

const (
	TransparencyOpaque      Transparency = "opaque"
	TransparencyTransparent Transparency = "transparent"
)

type Visibility string

const (
	VisibilityDefault      Visibility = "default"
	VisibilityPrivate      Visibility = "private"
	VisibilityConfidential Visibility = "confidential"
)

type ResponseStatus string

const (
	ResponseAccepted    ResponseStatus = "accepted"
	ResponseDeclined    ResponseStatus = "declined"
	ResponseTentative   ResponseStatus = "tentative"
	ResponseNeedsAction ResponseStatus = "needsAction"
)

type ReminderMethod string

const (
	ReminderPopup ReminderMethod = "popup"
	ReminderEmail ReminderMethod = "email"
)

// Organizer of an event.
type Organizer struct {
	Email       string
	DisplayName string
}

// Attendee of an event.
type Attendee struct {
	Email          string
	DisplayName    string
	ResponseStatus ResponseStatus
	Optional       bool
	IsResource     bool
}

// Reminder is a relative notification before the event starts.
type Reminder struct {
	Method        ReminderMethod
	MinutesBefore int
}

// Event is produced by translation and consumed exactly once by the importer.
// Empty enum fields mean "use the destination default".
type Event struct {
	// ExternalID is the stable, idempotent identifier used at the destination.
	ExternalID string
	// OriginalID is the legacy record's own UID when it had one.
	OriginalID string

	Title       string
	Description string
	Location    string

	Start TimeSpec
	End   TimeSpec

	// Recurrence holds wire-formatted RRULE, EXDATE and RDATE lines.
	Recurrence []string

	Status       Status
	Transparency Transparency
	Visibility   Visibility

	Organizer *Organizer
	Attendees []Attendee
	Reminders []Reminder

	Sequence *int
}

// WithoutParticipants returns a copy with organizer and attendees removed.
// The receiver is left untouched.
func (e *Event) WithoutParticipants() *Event {
	c := e.clone()
	c.Organizer = nil
	c.Attendees = nil
	return c
}

// WithAttendee returns a copy that also lists email as an accepted attendee,
// unless an attendee with the same address (case-insensitive) already exists.
func (e *Event) WithAttendee(email string) *Event {
	c := e.clone()
	for _, a := range c.Attendees {
		if strings.EqualFold(a.Email, email) {
			return c
		}
	}
	c.Attendees = append(c.Attendees, Attendee{Email: email, ResponseStatus: ResponseAccepted})
	return c
}

func (e *Event) clone() *Event {
	c := *e
	c.Recurrence = append([]string(nil), e.Recurrence...)
	c.Attendees = append([]Attendee(nil), e.Attendees...)
	c.Reminders = append([]Reminder(nil), e.Reminders...)
	if e.Organizer != nil {
		o := *e.Organizer
		c.Organizer = &o
	}
	if e.Sequence != nil {
		s := *e.Sequence
		c.Sequence = &s
	}
	return &c
}
