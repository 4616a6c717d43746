package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "CORPUSWATCH"

// settings resolves CLI settings from flags first, then CORPUSWATCH_*
// environment variables, then defaults.
var settings = viper.New()

func init() {
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	settings.SetDefault("log-level", "info")

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to config file (env CORPUSWATCH_CONFIG)")
	flags.String("log-level", "info", "log level: debug, info, warn or error (env CORPUSWATCH_LOG_LEVEL)")

	_ = settings.BindPFlag("config", flags.Lookup("config"))
	_ = settings.BindPFlag("log-level", flags.Lookup("log-level"))
}

// configPath returns the config file to load.
func configPath() (string, error) {
	path := strings.TrimSpace(settings.GetString("config"))
	if path == "" {
		return "", errors.New("config file is required: pass --config or set CORPUSWATCH_CONFIG")
	}
	return path, nil
}

// parseLevel accepts the level names slog understands, case-insensitively.
func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// newLogger creates a JSON logger for CLI use.
func newLogger() (*slog.Logger, error) {
	level, err := parseLevel(settings.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}
