package main

import (
	"github.com/spf13/cobra"

	"github.com/andrew/mentor-gateway/internal/config"
	"github.com/andrew/mentor-gateway/internal/database"
)

var (
	Version = "dev"

	configPath string
)

// rootCmd serves the API when called without a subcommand
var rootCmd = &cobra.Command{
	Use:     "mentor-gateway",
	Version: Version,
	Short:   "AI completion gateway with provider fallback and cached learning content",
	Long: `mentor-gateway routes completion requests across AI providers in a fixed
priority order, skipping providers whose circuit is open or whose daily quota
is exhausted, and serves cached course content when no provider can answer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML config file")
}

// openStore loads config and opens the database for commands that need both
func openStore() (*config.Config, *database.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
