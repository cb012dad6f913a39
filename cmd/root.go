package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "weatherstationd",
	Short: "Ingest daemon for a personal weather station",
	Long: `weatherstationd receives telemetry reports pushed by a personal weather
station over HTTP, stores raw samples in SQLite or PostgreSQL, and serves
derived aggregates: the current reading, per-day raw data, cached per-day
high/low temperature summaries, and per-year summary listings. Day boundaries
are computed in the configured station-local timezone.`,
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (text or json)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
