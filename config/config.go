// Package config provides YAML configuration parsing for corpuswatch.
//
// This package enables running corpuswatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Phonetics Lab
//	port: 8080
//	poll_interval: 10s
//
//	backend:
//	  base_url: ${PGDB_URL:-http://localhost:8000}
//	  token: ${PGDB_TOKEN:-}
//	  timeout: 10s
//
//	corpora:
//	  - id: 12
//	    name: TIMIT
//	    labels:
//	      lab: phonetics
//
//	groups:
//	  - name: buckeye
//	    ids: [3, 4, 5]
//	    name_template: "Buckeye speaker set {{.id}}"
//	    interval: 1m
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// minPollInterval is the minimum allowed polling interval. Each refresh
	// of an imported corpus costs six API requests.
	minPollInterval = 1 * time.Second

	defaultPort         = 8080
	defaultPollInterval = 10 * time.Second
)

// Config is the root configuration structure for corpuswatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "corpuswatch" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the time between refreshes of each corpus.
	// Accepts duration strings like "10s", "1m". Defaults to 10s.
	PollInterval Duration `yaml:"poll_interval"`

	// Backend locates the corpus-management API.
	Backend BackendConfig `yaml:"backend"`

	// Corpora lists individually configured corpora.
	Corpora []CorpusConfig `yaml:"corpora"`

	// Groups lists sets of corpora that share labels and an interval.
	Groups []GroupConfig `yaml:"groups"`
}

// BackendConfig locates and authenticates against the API.
type BackendConfig struct {
	// BaseURL is the server root, e.g. https://pgdb.example.org.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// Token is an API token. Supports environment variable substitution.
	Token string `yaml:"token"`

	// Timeout bounds each request. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`
}

// CorpusConfig defines a single watched corpus.
type CorpusConfig struct {
	// ID is the backend corpus id.
	ID CorpusID `yaml:"id"`

	// Name overrides the name the backend reports.
	Name string `yaml:"name"`

	// Labels are metadata key-value pairs for grouping/filtering.
	Labels map[string]string `yaml:"labels"`

	// Interval is the custom refresh interval for this corpus.
	// If not specified, uses the global poll_interval.
	// Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`
}

// GroupConfig defines a set of corpora configured together.
//
// Every corpus in the group gets the group's labels plus a "group" label
// holding the group name.
type GroupConfig struct {
	// Name identifies the group.
	Name string `yaml:"name"`

	// IDs are the backend corpus ids in the group.
	IDs []CorpusID `yaml:"ids"`

	// NameTemplate is an optional Go template for the display name of each
	// corpus. {{.id}} and {{.group}} are available. When empty the backend's
	// corpus name is shown.
	NameTemplate string `yaml:"name_template"`

	// Labels are applied to every corpus in the group.
	Labels map[string]string `yaml:"labels"`

	// Interval is the custom refresh interval for every corpus in the group.
	Interval Duration `yaml:"interval"`
}

// CorpusID is a backend corpus id. YAML may spell it as a number or a
// string; both decode to the same id.
type CorpusID string

// UnmarshalYAML implements yaml.Unmarshaler for CorpusID.
func (c *CorpusID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("corpus id must be a number or string, got %v", node.Kind)
	}
	*c = CorpusID(strings.TrimSpace(node.Value))
	return nil
}

// String returns the id.
func (c CorpusID) String() string {
	return string(c)
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the backend base_url and token.
// Defaults are applied for Port (8080) and PollInterval (10s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(defaultPollInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}

	if err := c.Backend.expandAndValidate(); err != nil {
		return err
	}

	seen := make(map[CorpusID]string)
	claim := func(id CorpusID, where string) error {
		if id == "" {
			return fmt.Errorf("%s: id is required", where)
		}
		if strings.Contains(string(id), "/") {
			return fmt.Errorf("%s: id %q cannot contain '/'", where, id)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("%s: corpus id %q is already configured by %s", where, id, prev)
		}
		seen[id] = where
		return nil
	}

	for i := range c.Corpora {
		cc := &c.Corpora[i]
		where := fmt.Sprintf("corpora[%d]", i)

		if err := claim(cc.ID, where); err != nil {
			return err
		}
		if err := validateInterval(cc.Interval, fmt.Sprintf("%s (%s)", where, cc.ID)); err != nil {
			return err
		}
	}

	for i := range c.Groups {
		g := &c.Groups[i]

		if g.Name == "" {
			return fmt.Errorf("groups[%d]: name is required", i)
		}
		if len(g.IDs) == 0 {
			return fmt.Errorf("groups[%d] (%s): at least one id is required", i, g.Name)
		}
		for j, id := range g.IDs {
			if err := claim(id, fmt.Sprintf("groups[%d] (%s) ids[%d]", i, g.Name, j)); err != nil {
				return err
			}
		}

		// fail fast before the builder tries to use an invalid template
		if g.NameTemplate != "" {
			if _, err := template.New("").Parse(g.NameTemplate); err != nil {
				return fmt.Errorf("groups[%d] (%s): invalid name_template: %w", i, g.Name, err)
			}
		}

		if err := validateInterval(g.Interval, fmt.Sprintf("groups[%d] (%s)", i, g.Name)); err != nil {
			return err
		}
	}

	if len(c.Corpora) == 0 && len(c.Groups) == 0 {
		return errors.New("at least one corpus or group must be defined")
	}

	return nil
}

func (b *BackendConfig) expandAndValidate() error {
	if b.BaseURL == "" {
		return errors.New("backend: base_url is required")
	}
	expanded, err := expandEnvVars(b.BaseURL)
	if err != nil {
		return fmt.Errorf("backend: base_url: %w", err)
	}
	b.BaseURL = expanded

	parsedURL, err := url.Parse(b.BaseURL)
	if err != nil {
		return fmt.Errorf("backend: invalid base_url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("backend: base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("backend: base_url must include a host")
	}

	token, err := expandEnvVars(b.Token)
	if err != nil {
		return fmt.Errorf("backend: token: %w", err)
	}
	b.Token = token

	if b.Timeout != 0 && b.Timeout.Duration() < time.Second {
		return fmt.Errorf("backend: timeout must be at least 1s if specified, got %s", b.Timeout.Duration())
	}
	return nil
}

func validateInterval(d Duration, context string) error {
	if d == 0 {
		return nil
	}
	if d.Duration() < time.Second {
		return fmt.Errorf("%s: interval must be at least 1s, got %s", context, d.Duration())
	}
	if d.Duration() > time.Hour {
		return fmt.Errorf("%s: interval must not exceed 1h, got %s", context, d.Duration())
	}
	return nil
}
