package importer

import (
	"errors"

	"github.com/beekhof/calendar-import/internal/calendar"
)

// ErrorKind is the importer's view of a submission result.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindRateLimited
	KindConflict
	KindNotParticipant
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRateLimited:
		return "rate-limited"
	case KindConflict:
		return "conflict"
	case KindNotParticipant:
		return "not-participant"
	default:
		return "other"
	}
}

// Classify maps a submission error to its kind. A nil error is KindNone.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, calendar.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, calendar.ErrConflict):
		return KindConflict
	case errors.Is(err, calendar.ErrNotParticipant):
		return KindNotParticipant
	default:
		return KindOther
	}
}

// Outcome is the terminal state of one event.
type Outcome int

const (
	OutcomeImported Outcome = iota
	OutcomeImportedWithoutAttendees
	OutcomeSkipped
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeImported:
		return "imported"
	case OutcomeImportedWithoutAttendees:
		return "imported-without-attendees"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "errored"
	}
}
