package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/beekhof/calendar-import/internal/auth"
	"github.com/beekhof/calendar-import/internal/calendar"
	"github.com/beekhof/calendar-import/internal/config"
	"github.com/beekhof/calendar-import/internal/log"
)

// newClient builds the destination client named by cfg and returns it with
// the calendar to import into.
func newClient(ctx context.Context, cfg *config.Config, logger *log.Logger) (calendar.Client, string, error) {
	switch cfg.Destination {
	case config.DestinationCalDAV:
		client := calendar.NewCalDAVClient(cfg.CalDAV.ServerURL, cfg.CalDAV.Username, cfg.CalDAV.Password, nil, logger)
		return client, cfg.CalDAV.CalendarPath, nil
	default:
		oauthConfig, err := config.LoadGoogleCredentials(cfg.CredentialsPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load Google credentials: %w", err)
		}
		httpClient, err := auth.GetAuthenticatedClient(ctx, oauthConfig, auth.NewFileTokenStore(cfg.TokenPath), os.Stderr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to authenticate: %w", err)
		}
		client, err := calendar.NewGoogleClient(ctx, httpClient)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create calendar client: %w", err)
		}
		return client, cfg.Calendar, nil
	}
}
