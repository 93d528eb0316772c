package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/beekhof/calendar-import/internal/auth"
	"github.com/beekhof/calendar-import/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to Google Calendar",
	Long: `Authorize calimport with your Google account and save the token.

  1. Starts a local server to receive the OAuth callback
  2. Prints a URL to sign in with Google
  3. Saves the token to --token for future runs

An existing token is replaced.`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Destination != config.DestinationGoogle {
		return fmt.Errorf("auth is only needed for the google destination, got '%s'", cfg.Destination)
	}

	oauthConfig, err := config.LoadGoogleCredentials(cfg.CredentialsPath)
	if err != nil {
		return fmt.Errorf("failed to load Google credentials: %w", err)
	}
	if _, err := auth.Authorize(cmd.Context(), oauthConfig, auth.NewFileTokenStore(cfg.TokenPath), auth.DefaultCallbackAddr, os.Stderr); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", cfg.TokenPath)
	return nil
}
