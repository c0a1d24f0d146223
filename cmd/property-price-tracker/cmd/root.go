// Package cmd implements the CLI commands for property-price-tracker.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "property-price-tracker",
	Short: "Track listing prices and their history",
	Long: "An API-first service that upserts property listing snapshots, keeps a per-listing " +
		"price history with running min/max bounds, and removes listings that leave the upstream feed.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	rootCmd.AddCommand(serveCmd, migrateCmd, ingestCmd, reconcileCmd, versionCommand())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the root cobra command for documentation generation.
func Root() *cobra.Command {
	return rootCmd
}
