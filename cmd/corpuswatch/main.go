// Package main is the entry point for the corpuswatch CLI.
//
// corpuswatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	corpuswatch serve -c config.yaml    # Start the dashboard
//	corpuswatch validate -c config.yaml # Validate configuration
//	corpuswatch version                 # Show version info
//
// The config path and log level may also come from the CORPUSWATCH_CONFIG
// and CORPUSWATCH_LOG_LEVEL environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "corpuswatch",
	Short: "A live status dashboard for speech corpora",
	Long: `corpuswatch keeps a live view of corpora on a corpus-management server.

It refreshes each configured corpus at a fixed interval, follows import
tasks to completion and shows the result in a web UI with Server-Sent
Events for live updates.

Quick start:
  1. Create a config file (corpuswatch.yaml)
  2. Run: corpuswatch serve -c corpuswatch.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  poll_interval: 10s
  backend:
    base_url: ${PGDB_URL:-http://localhost:8000}
    token: ${PGDB_TOKEN:-}
  corpora:
    - id: 12
      name: TIMIT`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this corpuswatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("corpuswatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
