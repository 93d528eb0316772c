package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beekhof/calendar-import/internal/log"
)

var calendarsCmd = &cobra.Command{
	Use:     "calendars",
	Aliases: []string{"cal", "cals"},
	Short:   "List destination calendars",
	Long:    `List the calendars the configured destination account can write to, with the IDs to pass to --calendar or --caldav-calendar.`,
	Args:    cobra.NoArgs,
	RunE:    runCalendars,
}

func init() {
	rootCmd.AddCommand(calendarsCmd)
}

func runCalendars(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, _, err := newClient(cmd.Context(), cfg, log.Default())
	if err != nil {
		return err
	}
	calendars, err := client.ListCalendars(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Available calendars:")
	fmt.Fprintln(out, "─────────────────────────────────────────────────")
	for _, c := range calendars {
		name := c.Summary
		if c.Primary {
			name += " (primary)"
		}
		fmt.Fprintf(out, "\n  • %s\n", name)
		fmt.Fprintf(out, "    ID: %s\n", c.ID)
		if c.TimeZone != "" {
			fmt.Fprintf(out, "    Time zone: %s\n", c.TimeZone)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total: %d calendars\n", len(calendars))
	return nil
}
