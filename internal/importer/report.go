package importer

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Report is the record of one run written with --report.
type Report struct {
	RunID       string    `yaml:"run_id"`
	Destination string    `yaml:"destination"`
	Calendar    string    `yaml:"calendar"`
	DryRun      bool      `yaml:"dry_run"`
	Files       []string  `yaml:"files"`
	StartedAt   time.Time `yaml:"started_at"`
	FinishedAt  time.Time `yaml:"finished_at"`
	Stats       Stats     `yaml:"stats"`
}

// WriteReport writes r to path as YAML.
func WriteReport(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteSummary prints the end-of-run totals.
func WriteSummary(w io.Writer, s Stats, dryRun bool) {
	fmt.Fprintln(w, "─────────────────────────────────────────────────")
	if dryRun {
		fmt.Fprintln(w, "Dry run complete. Nothing was written.")
		fmt.Fprintf(w, "  Would import:        %d\n", s.Imported)
	} else {
		fmt.Fprintln(w, "Import complete.")
		fmt.Fprintf(w, "  Imported:            %d\n", s.Imported)
		fmt.Fprintf(w, "  Without attendees:   %d\n", s.ImportedWithoutAttendees)
		fmt.Fprintf(w, "  Attendees imported:  %d\n", s.AttendeesImported)
	}
	fmt.Fprintf(w, "  Skipped (duplicates): %d\n", s.Skipped)
	fmt.Fprintf(w, "  Errors:              %d\n", s.Errors)
	fmt.Fprintf(w, "  Total processed:     %d\n", s.Total)
}
