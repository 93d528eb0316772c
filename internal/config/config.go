package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// EnvPrefix prefixes every environment variable the tool reads, e.g.
// CALIMPORT_TOKEN_PATH or CALIMPORT_CALDAV_SERVER_URL.
const EnvPrefix = "CALIMPORT"

// DateLayout is the format of start_date and end_date.
const DateLayout = "2006-01-02"

const (
	DestinationGoogle = "google"
	DestinationCalDAV = "caldav"
)

// LoadGoogleCredentials reads an OAuth client from a Google Cloud Console
// credentials file. Both "installed" (desktop) and "web" clients are accepted.
func LoadGoogleCredentials(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
	}
	return cfg, nil
}

// CalDAV holds the settings for a CalDAV destination.
type CalDAV struct {
	ServerURL    string `yaml:"server_url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"-"`
	CalendarPath string `yaml:"calendar_path,omitempty"`
}

// Config holds the configuration for an import run.
type Config struct {
	CredentialsPath string `yaml:"credentials_path,omitempty"`
	TokenPath       string `yaml:"token_path,omitempty"`
	Destination     string `yaml:"destination"`
	Calendar        string `yaml:"calendar"`
	CalDAV          CalDAV `yaml:"caldav,omitempty"`

	IncludeAttendees bool `yaml:"include_attendees"`
	SkipDuplicates   bool `yaml:"skip_duplicates"`
	DryRun           bool `yaml:"dry_run"`

	// StartDate and EndDate are zero when unset. EndDate is exclusive.
	StartDate time.Time `yaml:"start_date,omitempty"`
	EndDate   time.Time `yaml:"end_date,omitempty"`
	Limit     int       `yaml:"limit,omitempty"`
	AddSelf   string    `yaml:"add_self,omitempty"`

	RequestsPerPeriod int           `yaml:"requests_per_period"`
	ThrottlePause     time.Duration `yaml:"throttle_pause"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`

	ReportPath string `yaml:"report_path,omitempty"`
	Verbose    bool   `yaml:"verbose"`
}

// New returns a viper instance with the tool's defaults and environment
// binding in place. Callers bind flags and read a config file on top.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("credentials_path", "credentials.json")
	v.SetDefault("destination", DestinationGoogle)
	v.SetDefault("calendar", "primary")
	v.SetDefault("include_attendees", true)
	v.SetDefault("skip_duplicates", true)
	v.SetDefault("requests_per_period", 5)
	v.SetDefault("throttle_pause", time.Second)
	v.SetDefault("rate_limit_cooldown", 60*time.Second)
	return v
}

// ReadFile loads path into v. With an empty path the default location
// ($HOME/.config/calimport/config.yaml) is tried and may be absent.
// It returns the file used, if any.
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", nil
		}
		v.AddConfigPath(filepath.Join(home, ".config", "calimport"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load builds a Config from v with the following precedence (highest to
// lowest): flags bound to v, environment variables, config file, defaults.
// Returns an error if any required value is missing or malformed.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		CredentialsPath: ExpandPath(v.GetString("credentials_path")),
		TokenPath:       ExpandPath(v.GetString("token_path")),
		Destination:     strings.ToLower(strings.TrimSpace(v.GetString("destination"))),
		Calendar:        v.GetString("calendar"),
		CalDAV: CalDAV{
			ServerURL:    v.GetString("caldav.server_url"),
			Username:     v.GetString("caldav.username"),
			Password:     v.GetString("caldav.password"),
			CalendarPath: v.GetString("caldav.calendar_path"),
		},
		IncludeAttendees:  v.GetBool("include_attendees"),
		SkipDuplicates:    v.GetBool("skip_duplicates"),
		DryRun:            v.GetBool("dry_run"),
		Limit:             v.GetInt("limit"),
		AddSelf:           strings.TrimSpace(v.GetString("add_self")),
		RequestsPerPeriod: v.GetInt("requests_per_period"),
		ThrottlePause:     v.GetDuration("throttle_pause"),
		RateLimitCooldown: v.GetDuration("rate_limit_cooldown"),
		ReportPath:        ExpandPath(v.GetString("report_path")),
		Verbose:           v.GetBool("verbose"),
	}

	var err error
	if cfg.StartDate, err = parseDate("start_date", v.GetString("start_date")); err != nil {
		return nil, err
	}
	if cfg.EndDate, err = parseDate("end_date", v.GetString("end_date")); err != nil {
		return nil, err
	}

	if cfg.Calendar == "" {
		cfg.Calendar = "primary"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Destination {
	case DestinationGoogle:
		if c.CredentialsPath == "" {
			return fmt.Errorf("credentials_path must be provided via --credentials flag, %s_CREDENTIALS_PATH environment variable, or config file", EnvPrefix)
		}
		if c.TokenPath == "" {
			return fmt.Errorf("token_path must be provided via --token flag, %s_TOKEN_PATH environment variable, or config file", EnvPrefix)
		}
	case DestinationCalDAV:
		if c.CalDAV.ServerURL == "" {
			return fmt.Errorf("caldav.server_url must be provided for a CalDAV destination")
		}
		if c.CalDAV.Username == "" {
			return fmt.Errorf("caldav.username must be provided for a CalDAV destination")
		}
		if c.CalDAV.Password == "" {
			return fmt.Errorf("caldav.password must be provided for a CalDAV destination (use %s_CALDAV_PASSWORD to keep it out of the config file)", EnvPrefix)
		}
	default:
		return fmt.Errorf("destination must be '%s' or '%s', got '%s'", DestinationGoogle, DestinationCalDAV, c.Destination)
	}

	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && !c.EndDate.After(c.StartDate) {
		return fmt.Errorf("end_date (%s) must be after start_date (%s)", c.EndDate.Format(DateLayout), c.StartDate.Format(DateLayout))
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	}
	if c.AddSelf != "" && !strings.Contains(c.AddSelf, "@") {
		return fmt.Errorf("add_self must be an email address, got '%s'", c.AddSelf)
	}
	if c.RequestsPerPeriod < 1 {
		return fmt.Errorf("requests_per_period must be at least 1, got %d", c.RequestsPerPeriod)
	}
	if c.ThrottlePause < 0 || c.RateLimitCooldown < 0 {
		return fmt.Errorf("throttle_pause and rate_limit_cooldown must not be negative")
	}
	return nil
}

func parseDate(key, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s value %q (use YYYY-MM-DD): %w", key, s, err)
	}
	return t, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
