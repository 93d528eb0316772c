package legacy

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emersion/go-ical"
)

// File is the content of one exported ICS file.
type File struct {
	// Zone is the raw calendar-level timezone name (X-WR-TIMEZONE, else the
	// first VTIMEZONE TZID), or "" when the file declares none.
	Zone    string
	Records []Record
}

// ReadFile decodes every VCALENDAR in the file at path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ICS file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read decodes every VCALENDAR in r and collects VEVENT records in order.
func Read(r io.Reader) (*File, error) {
	out := &File{}
	dec := ical.NewDecoder(r)
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse ICS: %w", err)
		}
		if out.Zone == "" {
			out.Zone = calendarZone(cal)
		}
		for _, child := range cal.Children {
			if child.Name == ical.CompEvent {
				out.Records = append(out.Records, NewRecord(child))
			}
		}
	}
	return out, nil
}

func calendarZone(cal *ical.Calendar) string {
	if p := cal.Props.Get("X-WR-TIMEZONE"); p != nil && strings.TrimSpace(p.Value) != "" {
		return strings.TrimSpace(p.Value)
	}
	for _, child := range cal.Children {
		if child.Name != ical.CompTimezone {
			continue
		}
		if p := child.Props.Get(ical.PropTimezoneID); p != nil && p.Value != "" {
			return p.Value
		}
	}
	return ""
}

// FindFiles resolves path to the ICS files it names: the file itself, or the
// *.ics files directly inside a directory, sorted by name.
func FindFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%s not found: %w", path, err)
	}

	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(path), ".ics") {
			return nil, fmt.Errorf("%s is not an ICS file", path)
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".ics") {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
