package timezone

import (
	"testing"
	"time"
)

func noIANA(string) bool { return false }

func TestNormalize(t *testing.T) {
	n := &Normalizer{IsIANA: noIANA}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", "UTC"},
		{"exact windows name", "Eastern Standard Time", "America/New_York"},
		{"exact utc alias", "Coordinated Universal Time", "UTC"},
		{"unknown", "Nonexistent Time", "UTC"},
		{"raw contains key", "(UTC-06:00) Central Standard Time (Mexico)", "America/Chicago"},
		{"key contains raw", "tokyo standard", "Asia/Tokyo"},
		{"case insensitive", "PACIFIC STANDARD TIME", "America/Los_Angeles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.raw); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalize_TableOrderBreaksTies(t *testing.T) {
	n := &Normalizer{IsIANA: noIANA}

	// "Mountain Standard Time" precedes "US Mountain Standard Time" in the
	// table, so a substring scan of the longer name hits the earlier entry.
	if got := n.Normalize("Custom US Mountain Standard Time zone"); got != "America/Denver" {
		t.Errorf("Expected first table match America/Denver, got %q", got)
	}
}

func TestNormalize_CanonicalPassthrough(t *testing.T) {
	n := &Normalizer{IsIANA: func(name string) bool { return name == "Europe/Oslo" }}

	if got := n.Normalize("Europe/Oslo"); got != "Europe/Oslo" {
		t.Errorf("Expected canonical id unchanged, got %q", got)
	}
}

func TestNewNormalizer_UsesTimezoneDatabase(t *testing.T) {
	if _, err := time.LoadLocation("America/Chicago"); err != nil {
		t.Skip("timezone database not available")
	}
	n := NewNormalizer()
	if got := n.Normalize("America/Chicago"); got != "America/Chicago" {
		t.Errorf("Expected America/Chicago unchanged, got %q", got)
	}
	if got := n.Normalize("Local"); got == "Local" {
		t.Errorf("Expected Local not to be treated as an IANA name")
	}
}

func TestLocation_FallsBackToUTC(t *testing.T) {
	if loc := Location("Not/AZone"); loc != time.UTC {
		t.Errorf("Expected UTC fallback, got %v", loc)
	}
	if loc := Location(""); loc != time.UTC {
		t.Errorf("Expected UTC for empty name, got %v", loc)
	}
}
