// Package timezone maps Windows/Outlook timezone names to IANA identifiers.
package timezone

import (
	"strings"
	"time"
)

// UTC is returned whenever a name cannot be resolved.
const UTC = "UTC"

type mapping struct {
	windows string
	iana    string
}

// windowsZones is scanned in this order for substring matches, so the first
// entry that matches wins.
var windowsZones = []mapping{
	{"Eastern Standard Time", "America/New_York"},
	{"Eastern Daylight Time", "America/New_York"},
	{"Central Standard Time", "America/Chicago"},
	{"Central Daylight Time", "America/Chicago"},
	{"Mountain Standard Time", "America/Denver"},
	{"Mountain Daylight Time", "America/Denver"},
	{"US Mountain Standard Time", "America/Phoenix"},
	{"Pacific Standard Time", "America/Los_Angeles"},
	{"Pacific Daylight Time", "America/Los_Angeles"},
	{"Alaska Standard Time", "America/Anchorage"},
	{"Hawaiian Standard Time", "Pacific/Honolulu"},
	{"GMT Standard Time", "Europe/London"},
	{"W. Europe Standard Time", "Europe/Berlin"},
	{"Romance Standard Time", "Europe/Paris"},
	{"Central European Standard Time", "Europe/Budapest"},
	{"E. Europe Standard Time", "Europe/Bucharest"},
	{"FLE Standard Time", "Europe/Kiev"},
	{"Russian Standard Time", "Europe/Moscow"},
	{"Tokyo Standard Time", "Asia/Tokyo"},
	{"China Standard Time", "Asia/Shanghai"},
	{"Singapore Standard Time", "Asia/Singapore"},
	{"India Standard Time", "Asia/Kolkata"},
	{"Arabian Standard Time", "Asia/Dubai"},
	{"Israel Standard Time", "Asia/Jerusalem"},
	{"AUS Eastern Standard Time", "Australia/Sydney"},
	{"E. Australia Standard Time", "Australia/Brisbane"},
	{"AUS Central Standard Time", "Australia/Darwin"},
	{"Cen. Australia Standard Time", "Australia/Adelaide"},
	{"W. Australia Standard Time", "Australia/Perth"},
	{"New Zealand Standard Time", "Pacific/Auckland"},
	{"Venezuela Standard Time", "America/Caracas"},
	{"SA Pacific Standard Time", "America/Bogota"},
	{"Atlantic Standard Time", "America/Halifax"},
	{"UTC", "UTC"},
	{"Coordinated Universal Time", "UTC"},
}

var exactZones = func() map[string]string {
	m := make(map[string]string, len(windowsZones))
	for _, z := range windowsZones {
		m[z.windows] = z.iana
	}
	return m
}()

// Normalizer resolves timezone names. IsIANA reports whether a name is
// already known to the timezone database; tests replace it with a stub.
type Normalizer struct {
	IsIANA func(name string) bool
}

// NewNormalizer returns a Normalizer backed by the Go timezone database.
func NewNormalizer() *Normalizer {
	return &Normalizer{IsIANA: loadable}
}

func loadable(name string) bool {
	// time.LoadLocation treats "" and "Local" specially; neither is an IANA name.
	if name == "" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// Normalize never fails: unknown names resolve to UTC.
func (n *Normalizer) Normalize(raw string) string {
	if raw == "" {
		return UTC
	}
	if n.IsIANA != nil && n.IsIANA(raw) {
		return raw
	}
	if iana, ok := exactZones[raw]; ok {
		return iana
	}

	lower := strings.ToLower(raw)
	for _, z := range windowsZones {
		key := strings.ToLower(z.windows)
		if strings.Contains(lower, key) || strings.Contains(key, lower) {
			return z.iana
		}
	}
	return UTC
}

// Location loads the location for an already-normalized name, falling back
// to UTC when the local timezone database does not know it.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
