package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrew/mentor-gateway/internal/cli/management"
)

var (
	jsonOutput bool
	listAll    bool
	usageSince string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Review and acknowledge quota alerts (interactive unless --json)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		manager := management.NewAlertManager(db, os.Stdout)
		if jsonOutput {
			return manager.ListAlertsJSON(cmd.Context(), listAll)
		}
		return manager.Run(cmd.Context())
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <id>...",
	Short: "Acknowledge quota alerts by ID (JSON output)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", a)
			}
			ids = append(ids, id)
		}

		_, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		return management.NewAlertManager(db, os.Stdout).AcknowledgeJSON(cmd.Context(), ids)
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Print provider usage statistics (JSON output)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var since *time.Time
		if usageSince != "" {
			t, err := time.Parse(time.RFC3339, usageSince)
			if err != nil {
				return fmt.Errorf("--since must be RFC3339: %w", err)
			}
			since = &t
		}

		_, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		return management.NewAlertManager(db, os.Stdout).UsageJSON(cmd.Context(), since)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an admin token for MENTOR_ADMIN_TOKEN (JSON output)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return management.NewAlertManager(nil, os.Stdout).TokenJSON()
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&jsonOutput, "json", false, "print alerts as JSON instead of opening the TUI")
	alertsCmd.Flags().BoolVar(&listAll, "all", false, "include acknowledged alerts (with --json)")
	usageCmd.Flags().StringVar(&usageSince, "since", "", "only count usage after this RFC3339 timestamp")

	alertsCmd.AddCommand(alertsAckCmd)
	rootCmd.AddCommand(alertsCmd, usageCmd, tokenCmd)
}
