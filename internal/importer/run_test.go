package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beekhof/calendar-import/internal/log"
	"github.com/beekhof/calendar-import/internal/timezone"
)

const exportICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Microsoft Corporation//Outlook 16.0 MIMEDIR//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:one@example.com\r\n" +
	"SUMMARY:First\r\n" +
	"DTSTART:20240301T090000\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:one@example.com\r\n" +
	"SUMMARY:First again\r\n" +
	"DTSTART:20240301T090000\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"SUMMARY:No uid\r\n" +
	"DTSTART;VALUE=DATE:20240315\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:nostart@example.com\r\n" +
	"SUMMARY:No start\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:broken@example.com\r\n" +
	"DTSTART:garbage\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:later@example.com\r\n" +
	"ATTENDEE;PARTSTAT=ACCEPTED:mailto:guest@example.com\r\n" +
	"DTSTART:20240501T090000\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.ics")
	if err := os.WriteFile(path, []byte(exportICS), 0600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func newTestRunner(client *mockCalendarClient) (*Runner, *bytes.Buffer) {
	var buf bytes.Buffer
	rec := &sleepRecorder{}
	throttle := &Throttle{Every: 5, Pause: time.Second, Cooldown: time.Minute, Sleep: rec.sleep}
	return NewRunner(client, timezone.NewNormalizer(), throttle, log.New(&buf, log.LevelDebug, 0)), &buf
}

func defaultOptions() Options {
	return Options{CalendarID: "primary", IncludeAttendees: true, SkipDuplicates: true}
}

func TestRun_SecondRunImportsNothing(t *testing.T) {
	path := writeExport(t)
	client := &mockCalendarClient{zone: "America/Chicago"}

	first, _ := newTestRunner(client)
	stats, err := first.Run(context.Background(), []string{path}, defaultOptions())
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
	if stats.Imported != 3 || stats.Skipped != 1 || stats.Errors != 1 || stats.Total != 4 {
		t.Errorf("Unexpected first-run stats: %+v", stats)
	}
	if stats.AttendeesImported != 1 {
		t.Errorf("Expected 1 attendee imported, got %d", stats.AttendeesImported)
	}
	if got := client.submitted[0].Start.ZoneID; got != "America/Chicago" {
		t.Errorf("Expected destination zone fallback, got %q", got)
	}

	second, _ := newTestRunner(client)
	stats, err = second.Run(context.Background(), []string{path}, defaultOptions())
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
	if stats.Imported != 0 || stats.ImportedWithoutAttendees != 0 || stats.Skipped != 4 {
		t.Errorf("Expected no new imports on the second run, got %+v", stats)
	}
	if len(client.submitted) != 3 {
		t.Errorf("Expected no new submissions, got %d total", len(client.submitted))
	}
}

func TestRun_ListingFailureIsFatal(t *testing.T) {
	client := &mockCalendarClient{listErr: errors.New("unauthorized")}
	r, _ := newTestRunner(client)

	_, err := r.Run(context.Background(), []string{writeExport(t)}, defaultOptions())
	if err == nil || !strings.Contains(err.Error(), "failed to list existing events") {
		t.Errorf("Expected a listing error, got %v", err)
	}
	if len(client.submitted) != 0 {
		t.Errorf("Expected no submissions, got %d", len(client.submitted))
	}
}

func TestRun_FiltersLimitAndAddSelf(t *testing.T) {
	client := &mockCalendarClient{}
	r, _ := newTestRunner(client)

	opts := defaultOptions()
	opts.Range = DateRange{Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	opts.Limit = 2
	opts.AddSelf = "me@example.com"

	stats, err := r.Run(context.Background(), []string{writeExport(t)}, opts)
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
	if stats.Total != 2 || stats.Imported != 1 || stats.Skipped != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	for _, ev := range client.submitted {
		if len(ev.Attendees) == 0 || ev.Attendees[len(ev.Attendees)-1].Email != "me@example.com" {
			t.Errorf("Expected self attendee on %s", ev.ExternalID)
		}
	}
}

func TestRun_AddSelfIgnoredWithoutAttendees(t *testing.T) {
	client := &mockCalendarClient{}
	r, _ := newTestRunner(client)

	opts := defaultOptions()
	opts.IncludeAttendees = false
	opts.AddSelf = "me@example.com"

	if _, err := r.Run(context.Background(), []string{writeExport(t)}, opts); err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
	for _, ev := range client.submitted {
		if len(ev.Attendees) != 0 {
			t.Errorf("Expected no attendees on %s, got %+v", ev.ExternalID, ev.Attendees)
		}
	}
}

func TestRun_MissingFileIsCounted(t *testing.T) {
	client := &mockCalendarClient{}
	r, buf := newTestRunner(client)

	stats, err := r.Run(context.Background(), []string{filepath.Join(t.TempDir(), "missing.ics")}, defaultOptions())
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
	if stats.Errors != 1 {
		t.Errorf("Expected the unreadable file to count as an error, got %+v", stats)
	}
	if !strings.Contains(buf.String(), "failed to process file") {
		t.Errorf("Expected the failure to be logged")
	}
}

func TestRun_FileZoneWins(t *testing.T) {
	ics := strings.Replace(exportICS, "VERSION:2.0\r\n", "VERSION:2.0\r\nX-WR-TIMEZONE:W. Europe Standard Time\r\n", 1)
	path := filepath.Join(t.TempDir(), "zoned.ics")
	if err := os.WriteFile(path, []byte(ics), 0600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	client := &mockCalendarClient{zone: "America/Chicago"}
	r, _ := newTestRunner(client)

	if _, err := r.Run(context.Background(), []string{path}, defaultOptions()); err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
	if got := client.submitted[0].Start.ZoneID; got != "Europe/Berlin" {
		t.Errorf("Expected file zone Europe/Berlin, got %q", got)
	}
}
