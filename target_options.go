package corpuswatch

import (
	"errors"
	"time"
)

// targetConfig holds mutable state during target construction.
type targetConfig struct {
	displayName string
	labels      map[string]string
	interval    time.Duration
}

// TargetOption is a function that configures a [Target] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithDisplayName], [WithLabels], [WithInterval].
type TargetOption func(*targetConfig) error

// WithDisplayName overrides the corpus name shown on the dashboard.
func WithDisplayName(name string) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.displayName = name
		return nil
	}
}

// WithLabels adds metadata labels to the target for grouping and filtering.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	t, err := corpuswatch.NewTarget("12",
//	    corpuswatch.WithLabels("lab", "phonetics", "language", "en"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithLabels(keyValues ...string) TargetOption {
	return func(cfg *targetConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithInterval sets a custom refresh interval for this target.
//
// When set, the corpus is refreshed at this interval instead of the global
// interval configured via [WithPollingInterval]. The interval must be at
// least 1 second and at most 1 hour.
//
// The interval is measured from when a refresh completes, so a slow backend
// never has two refreshes of the same corpus in flight.
func WithInterval(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d < time.Second {
			return errors.New("interval must be at least 1 second")
		}
		if d > time.Hour {
			return errors.New("interval must not exceed 1 hour")
		}
		cfg.interval = d
		return nil
	}
}
