// Package cmd defines the command-line interface for the offline agent.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dailytracker/offline-agent/internal/logger"
)

// Set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
)

// configPath is the --config flag value, empty for the default search path.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "offline-agent",
	Short: "Offline caching and push-notification agent for Daily Tracker",
	Long: `offline-agent is a sidecar for the Daily Tracker web app. It precaches
the application shell into a versioned cache store, answers same-origin
requests cache-first, displays push notifications, and routes messages
from open application windows.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Running the bare command serves, matching the common sidecar usage.
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: offline-agent.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("offline-agent %s (%s)\n", version, commit)
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger from the configured level.
func newLogger(level string) logger.Logger {
	var l logger.LogLevel
	switch level {
	case "debug":
		l = logger.LogLevelDebug
	case "warn":
		l = logger.LogLevelWarn
	case "error":
		l = logger.LogLevelError
	default:
		l = logger.LogLevelInfo
	}
	return logger.NewSlogLogger(os.Stderr, l, nil)
}
