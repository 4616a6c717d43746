package corpuswatch

import (
	"errors"
	"log/slog"
	"time"
)

// watcherConfig holds mutable state during Watcher construction.
type watcherConfig struct {
	title           string
	backendURL      string
	token           string
	requestTimeout  time.Duration
	targets         []Target
	pollingInterval time.Duration
	port            int
	maxConcurrency  int
	logger          *slog.Logger
	statusCallbacks []func(StatusResult)
}

// Option is a function that configures a [Watcher] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*watcherConfig) error

// WithBackend sets the root URL of the corpus-management server, for example
// "https://pgdb.example.org". Request paths such as /api/corpus/ are
// appended to it. Required.
func WithBackend(baseURL string) Option {
	return func(cfg *watcherConfig) error {
		if baseURL == "" {
			return errors.New("backend URL cannot be empty")
		}
		cfg.backendURL = baseURL
		return nil
	}
}

// WithToken authenticates every backend request with an API token.
// Without a token the watcher relies on session cookies only, which is
// enough for backends that allow anonymous reads.
func WithToken(token string) Option {
	return func(cfg *watcherConfig) error {
		cfg.token = token
		return nil
	}
}

// WithRequestTimeout bounds each backend request. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithTarget adds a single [Target] to the watch list.
//
// Can be called multiple times. At least one target must be configured for
// [New] to succeed.
func WithTarget(t Target) Option {
	return func(cfg *watcherConfig) error {
		cfg.targets = append(cfg.targets, t)
		return nil
	}
}

// WithTargets adds multiple [Target] values to the watch list.
// Equivalent to calling [WithTarget] for each.
func WithTargets(targets ...Target) Option {
	return func(cfg *watcherConfig) error {
		cfg.targets = append(cfg.targets, targets...)
		return nil
	}
}

// WithPollingInterval sets how often each corpus is refreshed, unless the
// target sets its own interval with [WithInterval].
// Defaults to 10 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server.
//
// The dashboard UI and API will be available at http://localhost:<port>.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *watcherConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency limits how many corpus views are opened at once when
// the watcher starts. Opening a view costs a few backend requests, so a
// large watch list is rolled out in batches. Defaults to 10.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *watcherConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithStatusCallback registers a function to be called each time a corpus
// refresh completes, successfully or not.
//
// Multiple callbacks may be registered; they execute in registration order.
//
// Callbacks are invoked synchronously from a single goroutine and must not
// block. Panics within callbacks are recovered and logged.
//
// Example:
//
//	w, err := corpuswatch.New(
//	    corpuswatch.WithBackend(url),
//	    corpuswatch.WithTarget(t),
//	    corpuswatch.WithStatusCallback(func(r corpuswatch.StatusResult) {
//	        if r.Status == corpuswatch.StatusReady {
//	            log.Printf("%s is ready", r.Name)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithStatusCallback(cb func(StatusResult)) Option {
	return func(cfg *watcherConfig) error {
		if cb == nil {
			return nil
		}
		cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
// If not specified, defaults to "corpuswatch".
func WithTitle(title string) Option {
	return func(cfg *watcherConfig) error {
		cfg.title = title
		return nil
	}
}
