package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/beekhof/calendar-import/internal/config"
	"github.com/beekhof/calendar-import/internal/importer"
	"github.com/beekhof/calendar-import/internal/legacy"
	"github.com/beekhof/calendar-import/internal/log"
	"github.com/beekhof/calendar-import/internal/timezone"
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "calimport [flags] PATH...",
	Short: "Import legacy calendar exports into Google Calendar or a CalDAV server",
	Long: `calimport reads ICS exports from a legacy calendar (files or directories of
*.ics files) and imports every event into a destination calendar.

Events already present at the destination, either natively or from an earlier
run, are skipped, so the import can be re-run safely after a partial failure.

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (CALIMPORT_TOKEN_PATH, CALIMPORT_CALDAV_PASSWORD, ...)
    3. Config file (--config, default $HOME/.config/calimport/config.yaml)
    4. Defaults`,
	Example: `  # Preview an import into the primary calendar
  calimport --token ~/.config/calimport/token.json --dry-run export.ics

  # Import one quarter of a directory of exports
  calimport --start-date 2024-01-01 --end-date 2024-04-01 exports/

  # Import into a CalDAV calendar
  CALIMPORT_CALDAV_PASSWORD=app-password calimport --destination caldav \
    --caldav-url https://caldav.icloud.com --caldav-user me@icloud.com \
    --caldav-calendar /me@icloud.com/calendars/work/ export.ics`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runImport,
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/calimport/config.yaml)")
	pf.BoolP("verbose", "v", false, "Enable verbose output (show DEBUG logs)")
	pf.String("destination", config.DestinationGoogle, "Destination type: google or caldav")
	pf.String("credentials", "", "Path to Google OAuth credentials JSON file")
	pf.String("token", "", "Path to store the Google OAuth token")
	pf.String("caldav-url", "", "CalDAV server URL (e.g. https://caldav.icloud.com)")
	pf.String("caldav-user", "", "CalDAV username")
	pf.String("caldav-calendar", "", "CalDAV calendar collection path")

	f := rootCmd.Flags()
	f.StringP("calendar", "c", "primary", "Destination calendar ID (Google)")
	f.Bool("include-attendees", true, "Import attendees and organizer")
	f.Bool("skip-duplicates", true, "Skip events already present at the destination")
	f.BoolP("dry-run", "n", false, "Show what would be imported without writing anything")
	f.String("start-date", "", "Only import events starting on or after this date (YYYY-MM-DD)")
	f.String("end-date", "", "Only import events starting before this date (YYYY-MM-DD)")
	f.Int("limit", 0, "Import at most this many events per file (0 means no limit)")
	f.String("add-self", "", "Add this email as an accepted attendee of every event")
	f.Int("requests-per-period", importer.DefaultRequestsPerPeriod, "Submissions between throttle pauses")
	f.Duration("throttle-pause", importer.DefaultPause, "Pause after every --requests-per-period submissions")
	f.Duration("rate-limit-cooldown", importer.DefaultCooldown, "Wait before retrying a rate-limited submission")
	f.String("report", "", "Write a YAML run report to this path")

	bind := map[string]string{
		"verbose":              "verbose",
		"destination":          "destination",
		"credentials_path":     "credentials",
		"token_path":           "token",
		"caldav.server_url":    "caldav-url",
		"caldav.username":      "caldav-user",
		"caldav.calendar_path": "caldav-calendar",
	}
	for key, name := range bind {
		cobra.CheckErr(v.BindPFlag(key, pf.Lookup(name)))
	}

	bind = map[string]string{
		"calendar":            "calendar",
		"include_attendees":   "include-attendees",
		"skip_duplicates":     "skip-duplicates",
		"dry_run":             "dry-run",
		"start_date":          "start-date",
		"end_date":            "end-date",
		"limit":               "limit",
		"add_self":            "add-self",
		"requests_per_period": "requests-per-period",
		"throttle_pause":      "throttle-pause",
		"rate_limit_cooldown": "rate-limit-cooldown",
		"report_path":         "report",
	}
	for key, name := range bind {
		cobra.CheckErr(v.BindPFlag(key, f.Lookup(name)))
	}
}

func initConfig() {
	used, err := config.ReadFile(v, cfgFile)
	cobra.CheckErr(err)
	if used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}

// loadConfig loads the config and applies the verbosity it names.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log.SetVerbose(cfg.Verbose)
	return cfg, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	runID := uuid.NewString()
	logger := log.Default().With("run", runID)
	started := time.Now()

	var files []string
	for _, arg := range args {
		found, err := legacy.FindFiles(config.ExpandPath(arg))
		if err != nil {
			return err
		}
		if len(found) == 0 {
			logger.Warn("no ICS files found", "path", arg)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return fmt.Errorf("no ICS files to import")
	}

	client, calendarID, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if calendarID == "" {
		return fmt.Errorf("caldav.calendar_path must be provided via --caldav-calendar flag, %s_CALDAV_CALENDAR_PATH environment variable, or config file (see 'calimport calendars')", config.EnvPrefix)
	}

	if cfg.DryRun {
		logger.Info("dry run: nothing will be written")
	}
	logger.Info("starting import", "files", len(files), "destination", cfg.Destination, "calendar", calendarID)

	throttle := importer.NewThrottle(cfg.RequestsPerPeriod, cfg.ThrottlePause, cfg.RateLimitCooldown)
	runner := importer.NewRunner(client, timezone.NewNormalizer(), throttle, logger)
	stats, err := runner.Run(ctx, files, importer.Options{
		CalendarID:       calendarID,
		IncludeAttendees: cfg.IncludeAttendees,
		SkipDuplicates:   cfg.SkipDuplicates,
		DryRun:           cfg.DryRun,
		Range:            importer.DateRange{Start: cfg.StartDate, End: cfg.EndDate},
		Limit:            cfg.Limit,
		AddSelf:          cfg.AddSelf,
	})
	if err != nil {
		return err
	}

	importer.WriteSummary(cmd.OutOrStdout(), stats, cfg.DryRun)

	if cfg.ReportPath != "" {
		report := importer.Report{
			RunID:       runID,
			Destination: cfg.Destination,
			Calendar:    calendarID,
			DryRun:      cfg.DryRun,
			Files:       files,
			StartedAt:   started,
			FinishedAt:  time.Now(),
			Stats:       stats,
		}
		if err := importer.WriteReport(cfg.ReportPath, report); err != nil {
			logger.Error("failed to write report", err, "path", cfg.ReportPath)
		} else {
			logger.Info("report written", "path", cfg.ReportPath)
		}
	}

	if ctx.Err() != nil {
		return fmt.Errorf("import interrupted: %w", ctx.Err())
	}
	if stats.Errors > 0 {
		return fmt.Errorf("import finished with %d error(s)", stats.Errors)
	}
	return nil
}
