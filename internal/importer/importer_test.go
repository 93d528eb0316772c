package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/beekhof/calendar-import/internal/calendar"
	"github.com/beekhof/calendar-import/internal/dedup"
	"github.com/beekhof/calendar-import/internal/event"
	"github.com/beekhof/calendar-import/internal/log"
)

// mockCalendarClient is a mock implementation of calendar.Client. Submitted
// events become "existing" so repeated runs see them.
type mockCalendarClient struct {
	// errs is consumed one entry per Submit call; nil entries succeed.
	errs      []error
	submitted []*event.Event
	existing  []calendar.Existing
	listErr   error
	zone      string
}

func (m *mockCalendarClient) Submit(ctx context.Context, calendarID string, ev *event.Event) error {
	m.submitted = append(m.submitted, ev)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return err
		}
	}
	m.existing = append(m.existing, calendar.Existing{ExternalID: ev.ExternalID, ProvenanceID: ev.OriginalID})
	return nil
}

func (m *mockCalendarClient) ListExisting(ctx context.Context, calendarID string) ([]calendar.Existing, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]calendar.Existing(nil), m.existing...), nil
}

func (m *mockCalendarClient) ListCalendars(ctx context.Context) ([]calendar.Info, error) {
	return []calendar.Info{{ID: "primary", Primary: true}}, nil
}

func (m *mockCalendarClient) TimeZone(ctx context.Context, calendarID string) (string, error) {
	return m.zone, nil
}

type sleepRecorder struct {
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	return nil
}

func newTestImporter(client calendar.Client, tracker *dedup.Tracker) (*Importer, *sleepRecorder, *bytes.Buffer) {
	rec := &sleepRecorder{}
	var buf bytes.Buffer
	throttle := &Throttle{Every: 5, Pause: time.Second, Cooldown: time.Minute, Sleep: rec.sleep}
	return New(client, tracker, throttle, log.New(&buf, log.LevelDebug, 0)), rec, &buf
}

func testEvent(id string, attendees ...string) *event.Event {
	ev := &event.Event{
		ExternalID: id,
		OriginalID: id,
		Title:      "Event " + id,
		Start:      event.At(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), "UTC"),
		End:        event.At(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), "UTC"),
	}
	if len(attendees) > 0 {
		ev.Organizer = &event.Organizer{Email: "boss@example.com"}
	}
	for _, a := range attendees {
		ev.Attendees = append(ev.Attendees, event.Attendee{Email: a, ResponseStatus: event.ResponseNeedsAction})
	}
	return ev
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("import: %w", calendar.ErrRateLimited), KindRateLimited},
		{fmt.Errorf("import: %w", calendar.ErrConflict), KindConflict},
		{fmt.Errorf("import: %w", calendar.ErrNotParticipant), KindNotParticipant},
		{errors.New("boom"), KindOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestThrottle(t *testing.T) {
	rec := &sleepRecorder{}
	th := &Throttle{Every: 2, Pause: time.Second, Cooldown: time.Minute, Sleep: rec.sleep}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := th.Before(ctx); err != nil {
			t.Fatalf("Before() returned an error: %v", err)
		}
	}
	if len(rec.sleeps) != 2 || rec.sleeps[0] != time.Second {
		t.Errorf("Expected 2 pauses of 1s for 5 attempts, got %v", rec.sleeps)
	}
	if th.Attempts() != 5 {
		t.Errorf("Expected 5 attempts, got %d", th.Attempts())
	}

	if err := th.Backoff(ctx); err != nil {
		t.Fatalf("Backoff() returned an error: %v", err)
	}
	if rec.sleeps[len(rec.sleeps)-1] != time.Minute {
		t.Errorf("Expected a cooldown of 1m, got %v", rec.sleeps)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestImportAll_DuplicateWithinBatch(t *testing.T) {
	client := &mockCalendarClient{}
	im, _, _ := newTestImporter(client, nil)

	stats := im.ImportAll(context.Background(), []*event.Event{testEvent("same"), testEvent("same")}, "primary", true, false)

	if stats.Imported != 1 || stats.Skipped != 1 || stats.Total != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if len(client.submitted) != 1 {
		t.Errorf("Expected 1 submission, got %d", len(client.submitted))
	}
}

func TestImportAll_SkipDuplicatesDisabled(t *testing.T) {
	client := &mockCalendarClient{}
	tracker := dedup.NewTracker()
	tracker.BulkLoad([]string{"a"})
	im, _, _ := newTestImporter(client, tracker)

	stats := im.ImportAll(context.Background(), []*event.Event{testEvent("a"), testEvent("a")}, "primary", false, false)
	if stats.Imported != 2 || len(client.submitted) != 2 {
		t.Errorf("Expected every event submitted, got %+v with %d submissions", stats, len(client.submitted))
	}
}

func TestImportAll_PreloadedIDsAreSkipped(t *testing.T) {
	client := &mockCalendarClient{}
	tracker := dedup.NewTracker()
	tracker.BulkLoad([]string{"old"})
	im, _, _ := newTestImporter(client, tracker)

	stats := im.ImportAll(context.Background(), []*event.Event{testEvent("old"), testEvent("new")}, "primary", true, false)
	if stats.Imported != 1 || stats.Skipped != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if !tracker.Contains("new") {
		t.Errorf("Expected imported id to be tracked")
	}
}

func TestImportAll_DryRun(t *testing.T) {
	client := &mockCalendarClient{}
	im, rec, buf := newTestImporter(client, nil)

	events := []*event.Event{testEvent("a"), testEvent("b"), testEvent("a")}
	stats := im.ImportAll(context.Background(), events, "primary", true, true)

	if len(client.submitted) != 0 || len(rec.sleeps) != 0 {
		t.Errorf("Expected no network calls or pauses in a dry run")
	}
	if stats.Imported != 2 || stats.Skipped != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if !strings.Contains(buf.String(), "would import") {
		t.Errorf("Expected a preview, got %q", buf.String())
	}
}

func TestImportAll_RateLimitRetry(t *testing.T) {
	client := &mockCalendarClient{errs: []error{fmt.Errorf("x: %w", calendar.ErrRateLimited), nil}}
	im, rec, _ := newTestImporter(client, nil)

	stats := im.ImportAll(context.Background(), []*event.Event{testEvent("a")}, "primary", true, false)
	if stats.Imported != 1 || stats.Errors != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if len(client.submitted) != 2 {
		t.Errorf("Expected exactly one retry, got %d submissions", len(client.submitted))
	}
	if len(rec.sleeps) != 1 || rec.sleeps[0] != time.Minute {
		t.Errorf("Expected one cooldown, got %v", rec.sleeps)
	}
}

func TestImportAll_RateLimitRetryFails(t *testing.T) {
	limited := fmt.Errorf("x: %w", calendar.ErrRateLimited)
	client := &mockCalendarClient{errs: []error{limited, limited}}
	im, _, _ := newTestImporter(client, nil)

	stats := im.ImportAll(context.Background(), []*event.Event{testEvent("a")}, "primary", true, false)
	if stats.Errors != 1 || stats.Imported != 0 || len(client.submitted) != 2 {
		t.Errorf("Expected a single retry then an error, got %+v with %d submissions", stats, len(client.submitted))
	}
}

func TestImportAll_Conflict(t *testing.T) {
	client := &mockCalendarClient{errs: []error{fmt.Errorf("x: %w", calendar.ErrConflict)}}
	im, _, _ := newTestImporter(client, nil)

	stats := im.ImportAll(context.Background(), []*event.Event{testEvent("a")}, "primary", true, false)
	if stats.Skipped != 1 || stats.Errors != 0 {
		t.Errorf("Expected conflict to count as skipped, got %+v", stats)
	}
}

func TestImportAll_NotParticipantFallback(t *testing.T) {
	client := &mockCalendarClient{errs: []error{fmt.Errorf("x: %w", calendar.ErrNotParticipant), nil}}
	im, _, _ := newTestImporter(client, nil)
	ev := testEvent("a", "one@example.com", "two@example.com")

	stats := im.ImportAll(context.Background(), []*event.Event{ev}, "primary", true, false)

	if stats.ImportedWithoutAttendees != 1 || stats.Imported != 0 {
		t.Errorf("Expected imported-without-attendees only, got %+v", stats)
	}
	if stats.AttendeesImported != 0 {
		t.Errorf("Expected no attendees counted, got %d", stats.AttendeesImported)
	}
	if len(client.submitted) != 2 {
		t.Fatalf("Expected exactly one retry, got %d submissions", len(client.submitted))
	}
	retry := client.submitted[1]
	if retry.Organizer != nil || len(retry.Attendees) != 0 {
		t.Errorf("Expected retry without participants, got %+v / %+v", retry.Organizer, retry.Attendees)
	}
	if ev.Organizer == nil || len(ev.Attendees) != 2 {
		t.Errorf("Expected original event to be left untouched")
	}
}

func TestImportAll_NotParticipantFallbackFails(t *testing.T) {
	client := &mockCalendarClient{errs: []error{
		fmt.Errorf("x: %w", calendar.ErrNotParticipant),
		errors.New("still failing"),
	}}
	im, _, _ := newTestImporter(client, nil)

	stats := im.ImportAll(context.Background(), []*event.Event{testEvent("a", "one@example.com")}, "primary", true, false)
	if stats.Errors != 1 || stats.ImportedWithoutAttendees != 0 || len(client.submitted) != 2 {
		t.Errorf("Expected one fallback attempt then an error, got %+v", stats)
	}
}

func TestImportAll_AttendeeCounter(t *testing.T) {
	client := &mockCalendarClient{}
	im, _, _ := newTestImporter(client, nil)

	events := []*event.Event{testEvent("a", "x@example.com", "y@example.com"), testEvent("b", "z@example.com")}
	stats := im.ImportAll(context.Background(), events, "primary", true, false)
	if stats.AttendeesImported != 3 {
		t.Errorf("Expected 3 attendees imported, got %d", stats.AttendeesImported)
	}
}

func TestImportAll_ErrorCap(t *testing.T) {
	var errs []error
	var events []*event.Event
	for i := 0; i < 13; i++ {
		errs = append(errs, errors.New("server exploded"))
		events = append(events, testEvent(fmt.Sprintf("e%d", i)))
	}
	client := &mockCalendarClient{errs: errs}
	im, _, buf := newTestImporter(client, nil)

	stats := im.ImportAll(context.Background(), events, "primary", true, false)

	if stats.Errors != 13 {
		t.Errorf("Expected 13 errors, got %d", stats.Errors)
	}
	out := buf.String()
	if n := strings.Count(out, "[ERROR]"); n != MaxLoggedErrors {
		t.Errorf("Expected %d logged errors, got %d", MaxLoggedErrors, n)
	}
	if strings.Count(out, "suppressing further error messages") != 1 {
		t.Errorf("Expected a single suppression notice")
	}
}

func TestImportAll_FailedIDCanBeRetriedLater(t *testing.T) {
	client := &mockCalendarClient{errs: []error{errors.New("transient"), nil}}
	im, _, _ := newTestImporter(client, nil)

	stats := im.ImportAll(context.Background(), []*event.Event{testEvent("a"), testEvent("a")}, "primary", true, false)
	if stats.Errors != 1 || stats.Imported != 1 {
		t.Errorf("Expected the repeat to be submitted after a failure, got %+v", stats)
	}
}

func TestImportAll_ThrottlePauses(t *testing.T) {
	client := &mockCalendarClient{}
	im, rec, _ := newTestImporter(client, nil)

	var events []*event.Event
	for i := 0; i < 11; i++ {
		events = append(events, testEvent(fmt.Sprintf("e%d", i)))
	}
	im.ImportAll(context.Background(), events, "primary", true, false)

	if len(rec.sleeps) != 2 {
		t.Errorf("Expected 2 pauses for 11 submissions, got %v", rec.sleeps)
	}
}

func TestImportAll_Cancelled(t *testing.T) {
	client := &mockCalendarClient{}
	im, _, _ := newTestImporter(client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := im.ImportAll(ctx, []*event.Event{testEvent("a")}, "primary", true, false)
	if len(client.submitted) != 0 || stats.Imported != 0 {
		t.Errorf("Expected no submissions after cancellation, got %+v", stats)
	}
}
