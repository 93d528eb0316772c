package event

import (
	"testing"
	"time"
)

func sampleEvent() *Event {
	seq := 2
	return &Event{
		ExternalID: "uid-1",
		Title:      "Planning",
		Start:      At(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), "UTC"),
		End:        At(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), "UTC"),
		Organizer:  &Organizer{Email: "boss@example.com"},
		Attendees: []Attendee{
			{Email: "a@example.com", ResponseStatus: ResponseAccepted},
		},
		Sequence: &seq,
	}
}

func TestWithoutParticipants_DoesNotMutateOriginal(t *testing.T) {
	ev := sampleEvent()

	reduced := ev.WithoutParticipants()

	if reduced.Organizer != nil || len(reduced.Attendees) != 0 {
		t.Errorf("Expected organizer and attendees to be stripped, got %+v / %+v", reduced.Organizer, reduced.Attendees)
	}
	if ev.Organizer == nil || len(ev.Attendees) != 1 {
		t.Errorf("Expected original event to keep participants")
	}
	if reduced.Title != ev.Title || reduced.ExternalID != ev.ExternalID {
		t.Errorf("Expected other fields to be copied")
	}
	*reduced.Sequence = 9
	if *ev.Sequence != 2 {
		t.Errorf("Expected sequence to be copied, not shared")
	}
}

func TestWithAttendee(t *testing.T) {
	ev := sampleEvent()

	added := ev.WithAttendee("me@example.com")
	if len(added.Attendees) != 2 {
		t.Fatalf("Expected 2 attendees, got %d", len(added.Attendees))
	}
	if added.Attendees[1].ResponseStatus != ResponseAccepted {
		t.Errorf("Expected added attendee to be accepted, got %q", added.Attendees[1].ResponseStatus)
	}
	if len(ev.Attendees) != 1 {
		t.Errorf("Expected original attendees untouched, got %d", len(ev.Attendees))
	}

	same := ev.WithAttendee("A@Example.com")
	if len(same.Attendees) != 1 {
		t.Errorf("Expected case-insensitive match to skip adding, got %d attendees", len(same.Attendees))
	}
}

func TestTimeSpec(t *testing.T) {
	d := DateOnly(time.Date(2024, 1, 10, 15, 0, 0, 0, time.Local))
	if d.String() != "2024-01-10" {
		t.Errorf("Expected 2024-01-10, got %s", d.String())
	}

	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skip("timezone database not available")
	}
	ts := At(time.Date(2024, 3, 1, 23, 30, 0, 0, loc), "America/Chicago")
	if got := ts.Day().Format("2006-01-02"); got != "2024-03-01" {
		t.Errorf("Expected day in the value's own zone, got %s", got)
	}
	if ts.String() != "2024-03-01T23:30:00-06:00" {
		t.Errorf("Unexpected RFC3339 rendering: %s", ts.String())
	}
	if (TimeSpec{}).IsZero() != true {
		t.Errorf("Expected zero TimeSpec to report IsZero")
	}
}
