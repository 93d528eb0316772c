package importer

import (
	"context"
	"fmt"

	"github.com/beekhof/calendar-import/internal/calendar"
	"github.com/beekhof/calendar-import/internal/dedup"
	"github.com/beekhof/calendar-import/internal/event"
	"github.com/beekhof/calendar-import/internal/legacy"
	"github.com/beekhof/calendar-import/internal/log"
	"github.com/beekhof/calendar-import/internal/timezone"
	"github.com/beekhof/calendar-import/internal/translate"
)

// Options controls one import run.
type Options struct {
	CalendarID       string
	IncludeAttendees bool
	SkipDuplicates   bool
	DryRun           bool
	Range            DateRange
	// Limit caps the events imported per file; 0 means no cap.
	Limit int
	// AddSelf is added as an accepted attendee when attendees are included.
	AddSelf string
}

// Runner reads legacy files, translates and filters their entries, and hands
// them to an Importer. One Runner serves one run.
type Runner struct {
	client     calendar.Client
	zones      translate.Normalizer
	translator *translate.Translator
	tracker    *dedup.Tracker
	importer   *Importer
	logger     *log.Logger
}

// NewRunner wires a run against client.
func NewRunner(client calendar.Client, zones translate.Normalizer, throttle *Throttle, logger *log.Logger) *Runner {
	if zones == nil {
		zones = timezone.NewNormalizer()
	}
	if logger == nil {
		logger = log.Default()
	}
	tracker := dedup.NewTracker()
	return &Runner{
		client:     client,
		zones:      zones,
		translator: translate.New(zones, logger),
		tracker:    tracker,
		importer:   New(client, tracker, throttle, logger),
		logger:     logger,
	}
}

// Run imports every file in order. It fails only when the destination
// cannot be listed up front; per-file and per-event problems are counted.
func (r *Runner) Run(ctx context.Context, files []string, opts Options) (Stats, error) {
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}

	destZone, err := r.client.TimeZone(ctx, opts.CalendarID)
	if err != nil {
		r.logger.Warn("could not read calendar timezone", "calendar", opts.CalendarID, "err", err)
	}

	if opts.SkipDuplicates {
		if err := r.Preload(ctx, opts.CalendarID); err != nil {
			return Stats{}, err
		}
	}

	var total Stats
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		stats, err := r.ImportFile(ctx, path, destZone, opts)
		if err != nil {
			r.logger.Error("failed to process file", err, "file", path)
			total.Errors++
			continue
		}
		total.Add(stats)
	}
	return total, nil
}

// Preload records every identifier already at the destination, both native
// ids and recorded legacy ids.
func (r *Runner) Preload(ctx context.Context, calendarID string) error {
	r.logger.Info("checking for existing events", "calendar", calendarID)
	existing, err := r.client.ListExisting(ctx, calendarID)
	if err != nil {
		return fmt.Errorf("failed to list existing events: %w", err)
	}

	ids := make([]string, 0, 2*len(existing))
	for _, e := range existing {
		ids = append(ids, e.ExternalID, e.ProvenanceID)
	}
	r.tracker.BulkLoad(ids)
	r.logger.Info("found existing events", "count", len(existing))
	return nil
}

// ImportFile processes one ICS file. destZone is used when the file names no
// zone of its own.
func (r *Runner) ImportFile(ctx context.Context, path, destZone string, opts Options) (Stats, error) {
	file, err := legacy.ReadFile(path)
	if err != nil {
		return Stats{}, err
	}

	zone := r.calendarZone(file.Zone, destZone)
	r.logger.Info("parsed file", "file", path, "records", len(file.Records), "zone", zone)

	events, failed := r.Translate(file.Records, zone, opts.IncludeAttendees)

	if !opts.Range.IsZero() {
		before := len(events)
		events = FilterByDate(events, opts.Range)
		r.logger.Info("date filter applied", "before", before, "after", len(events))
	}
	if opts.Limit > 0 && len(events) > opts.Limit {
		events = Limit(events, opts.Limit)
		r.logger.Info("limited events", "limit", opts.Limit)
	}
	if opts.AddSelf != "" && opts.IncludeAttendees {
		r.logger.Info("adding self as attendee", "email", opts.AddSelf)
		events = AddSelf(events, opts.AddSelf)
	}

	stats := Stats{}
	if len(events) > 0 {
		stats = r.importer.ImportAll(ctx, events, opts.CalendarID, opts.SkipDuplicates, opts.DryRun)
	}
	stats.Errors += failed
	r.logger.Info("file complete", "file", path, "imported", stats.Imported+stats.ImportedWithoutAttendees, "skipped", stats.Skipped, "errors", stats.Errors)
	return stats, nil
}

// Translate converts records in order. Records without a start are dropped
// silently; undecodable ones are logged and counted.
func (r *Runner) Translate(records []legacy.Record, zone string, includeAttendees bool) ([]*event.Event, int) {
	events := make([]*event.Event, 0, len(records))
	failed := 0
	for _, rec := range records {
		ev, err := r.translator.Translate(rec, zone, includeAttendees)
		if err != nil {
			failed++
			r.logger.Warn("could not parse event", "uid", rec.Text("UID"), "err", err)
			continue
		}
		if ev == nil {
			r.logger.Debug("skipping record without start", "uid", rec.Text("UID"))
			continue
		}
		events = append(events, ev)
	}
	return events, failed
}

func (r *Runner) calendarZone(fileZone, destZone string) string {
	if fileZone != "" {
		return r.zones.Normalize(fileZone)
	}
	if destZone != "" {
		return r.zones.Normalize(destZone)
	}
	return timezone.UTC
}
