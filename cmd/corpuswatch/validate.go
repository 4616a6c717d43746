package main

import (
	"fmt"

	"github.com/jpalmerr/corpuswatch/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a corpuswatch configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It does not contact the backend. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  corpuswatch validate -c config.yaml
  corpuswatch validate --config /etc/corpuswatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Corpora)
	total := cfg.TargetCount()

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:          %d\n", cfg.Port)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Printf("  Backend:       %s\n", cfg.Backend.BaseURL)
	fmt.Printf("  Corpora:       %d direct + %d from groups = %d total\n",
		direct, total-direct, total)

	return nil
}
