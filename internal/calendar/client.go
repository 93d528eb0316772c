// Package calendar contains the destination clients events are imported into.
package calendar

import (
	"context"
	"errors"

	"github.com/beekhof/calendar-import/internal/event"
)

// Error kinds a Client wraps its failures with. Callers match them with
// errors.Is.
var (
	// ErrRateLimited means the destination asked the caller to slow down.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrConflict means a record with the same identifier already exists.
	ErrConflict = errors.New("event already exists")
	// ErrNotParticipant means the destination refused the organizer or
	// attendee list because the caller is neither of them.
	ErrNotParticipant = errors.New("caller is neither organizer nor attendee")
)

// ProvenanceKey is the private property that records the legacy UID of an
// imported event.
const ProvenanceKey = "outlookUID"

// Existing identifies one event already present at the destination.
type Existing struct {
	ExternalID string
	// ProvenanceID is the legacy UID recorded at import time, if any.
	ProvenanceID string
}

// Info describes one calendar the account can write to.
type Info struct {
	ID       string
	Summary  string
	TimeZone string
	Primary  bool
}

// Client is the destination surface used by the importer.
// Both the Google Calendar and CalDAV clients implement this interface.
type Client interface {
	// Submit creates ev in the calendar without notifying attendees.
	Submit(ctx context.Context, calendarID string, ev *event.Event) error
	ListExisting(ctx context.Context, calendarID string) ([]Existing, error)
	ListCalendars(ctx context.Context) ([]Info, error)
	// TimeZone returns the calendar's default zone, or "" if unknown.
	TimeZone(ctx context.Context, calendarID string) (string, error)
}
