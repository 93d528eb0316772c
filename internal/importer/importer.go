// Package importer submits canonical events to a destination calendar.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/beekhof/calendar-import/internal/calendar"
	"github.com/beekhof/calendar-import/internal/dedup"
	"github.com/beekhof/calendar-import/internal/event"
	"github.com/beekhof/calendar-import/internal/log"
)

const (
	// MaxLoggedErrors is how many failures are logged in detail per batch.
	MaxLoggedErrors = 10
	// maxPreviewed is how many events a dry run describes.
	maxPreviewed = 10

	progressEvery    = 100
	progressInterval = 10 * time.Second
)

// Stats counts per-outcome results. Imported and ImportedWithoutAttendees
// are disjoint.
type Stats struct {
	Total                    int `yaml:"total"`
	Imported                 int `yaml:"imported"`
	ImportedWithoutAttendees int `yaml:"imported_without_attendees"`
	Skipped                  int `yaml:"skipped"`
	Errors                   int `yaml:"errors"`
	AttendeesImported        int `yaml:"attendees_imported"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Total += o.Total
	s.Imported += o.Imported
	s.ImportedWithoutAttendees += o.ImportedWithoutAttendees
	s.Skipped += o.Skipped
	s.Errors += o.Errors
	s.AttendeesImported += o.AttendeesImported
}

func (s *Stats) record(o Outcome) {
	switch o {
	case OutcomeImported:
		s.Imported++
	case OutcomeImportedWithoutAttendees:
		s.ImportedWithoutAttendees++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeErrored:
		s.Errors++
	}
}

// Importer drives submissions for one run. Events are processed strictly in
// order, one at a time.
type Importer struct {
	client   calendar.Client
	tracker  *dedup.Tracker
	throttle *Throttle
	logger   *log.Logger
	now      func() time.Time
}

// New creates an Importer. tracker should already hold the destination's
// existing identifiers when duplicates are to be skipped.
func New(client calendar.Client, tracker *dedup.Tracker, throttle *Throttle, logger *log.Logger) *Importer {
	if tracker == nil {
		tracker = dedup.NewTracker()
	}
	if throttle == nil {
		throttle = NewThrottle(DefaultRequestsPerPeriod, DefaultPause, DefaultCooldown)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Importer{
		client:   client,
		tracker:  tracker,
		throttle: throttle,
		logger:   logger,
		now:      time.Now,
	}
}

// ImportAll submits events to calendarID and returns the per-outcome counts.
// Individual failures never stop the batch; a cancelled ctx does.
func (im *Importer) ImportAll(ctx context.Context, events []*event.Event, calendarID string, skipDuplicates, dryRun bool) Stats {
	stats := Stats{Total: len(events)}
	logged := 0
	previewed := 0
	lastReport := im.now()
	lastCount := 0

	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			im.logger.Warn("import interrupted", "processed", i, "total", len(events), "err", err)
			break
		}

		outcome, err := im.process(ctx, ev, calendarID, skipDuplicates, dryRun)
		stats.record(outcome)

		switch {
		case outcome == OutcomeErrored:
			logged++
			if logged <= MaxLoggedErrors {
				im.logger.Error("failed to import event", err, "title", ev.Title, "uid", ev.ExternalID)
			} else if logged == MaxLoggedErrors+1 {
				im.logger.Warn("suppressing further error messages")
			}
		case outcome == OutcomeImported && dryRun:
			previewed++
			if previewed <= maxPreviewed {
				im.logger.Info("would import", "title", ev.Title, "start", ev.Start.String(), "attendees", len(ev.Attendees))
			} else if previewed == maxPreviewed+1 {
				im.logger.Info("... and more events")
			}
		case outcome == OutcomeImported:
			stats.AttendeesImported += len(ev.Attendees)
		}

		if dryRun {
			continue
		}
		n := i + 1
		now := im.now()
		if n%progressEvery == 0 || n == len(events) || now.Sub(lastReport) > progressInterval {
			kv := []any{"done", n, "total", len(events), "imported", stats.Imported + stats.ImportedWithoutAttendees, "skipped", stats.Skipped, "errors", stats.Errors}
			if elapsed := now.Sub(lastReport).Seconds(); elapsed > 0 && n > lastCount {
				kv = append(kv, "rate", fmt.Sprintf("%.1f/s", float64(n-lastCount)/elapsed))
			}
			im.logger.Info("progress", kv...)
			lastReport = now
			lastCount = n
		}
	}

	return stats
}

// process runs the outcome state machine for one event.
func (im *Importer) process(ctx context.Context, ev *event.Event, calendarID string, skipDuplicates, dryRun bool) (Outcome, error) {
	id := ev.ExternalID
	if skipDuplicates && !im.tracker.Claim(id) {
		return OutcomeSkipped, nil
	}
	if dryRun {
		im.tracker.MarkImported(id)
		return OutcomeImported, nil
	}

	outcome, err := im.submitWithFallback(ctx, calendarID, ev)
	switch outcome {
	case OutcomeImported, OutcomeImportedWithoutAttendees, OutcomeSkipped:
		im.tracker.MarkImported(id)
	case OutcomeErrored:
		if skipDuplicates {
			im.tracker.Release(id)
		}
	}
	return outcome, err
}

func (im *Importer) submitWithFallback(ctx context.Context, calendarID string, ev *event.Event) (Outcome, error) {
	err := im.submit(ctx, calendarID, ev)
	switch Classify(err) {
	case KindNone:
		return OutcomeImported, nil

	case KindRateLimited:
		im.logger.Warn("rate limit hit, cooling down", "wait", im.throttle.Cooldown, "uid", ev.ExternalID)
		if err := im.throttle.Backoff(ctx); err != nil {
			return OutcomeErrored, err
		}
		if err := im.submit(ctx, calendarID, ev); err != nil {
			return OutcomeErrored, fmt.Errorf("retry failed: %w", err)
		}
		return OutcomeImported, nil

	case KindConflict:
		im.logger.Debug("event already exists", "uid", ev.ExternalID)
		return OutcomeSkipped, nil

	case KindNotParticipant:
		im.logger.Debug("retrying without organizer and attendees", "uid", ev.ExternalID)
		if err := im.submit(ctx, calendarID, ev.WithoutParticipants()); err != nil {
			return OutcomeErrored, fmt.Errorf("fallback failed: %w", err)
		}
		return OutcomeImportedWithoutAttendees, nil

	default:
		return OutcomeErrored, err
	}
}

func (im *Importer) submit(ctx context.Context, calendarID string, ev *event.Event) error {
	if err := im.throttle.Before(ctx); err != nil {
		return err
	}
	return im.client.Submit(ctx, calendarID, ev)
}
