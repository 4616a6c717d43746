package config

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/jpalmerr/corpuswatch"
)

// groupLabel is the label every grouped corpus carries with its group name.
const groupLabel = "group"

// BuildTargets converts parsed configuration into SDK Target objects.
//
// Individually configured corpora come first, in file order, followed by
// every group's corpora in file order.
func BuildTargets(cfg *Config) ([]corpuswatch.Target, error) {
	var targets []corpuswatch.Target

	for _, cc := range cfg.Corpora {
		t, err := buildTarget(cc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	for _, gc := range cfg.Groups {
		groupTargets, err := buildGroupTargets(gc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, groupTargets...)
	}

	return targets, nil
}

// buildTarget converts a single CorpusConfig to an SDK Target.
func buildTarget(cc CorpusConfig) (corpuswatch.Target, error) {
	var opts []corpuswatch.TargetOption

	if cc.Name != "" {
		opts = append(opts, corpuswatch.WithDisplayName(cc.Name))
	}

	if len(cc.Labels) > 0 {
		opts = append(opts, corpuswatch.WithLabels(mapToKeyValuePairs(cc.Labels)...))
	}

	if cc.Interval != 0 {
		opts = append(opts, corpuswatch.WithInterval(cc.Interval.Duration()))
	}

	t, err := corpuswatch.NewTarget(cc.ID.String(), opts...)
	if err != nil {
		return corpuswatch.Target{}, fmt.Errorf("corpus %s: %w", cc.ID, err)
	}
	return t, nil
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildGroupTargets expands a GroupConfig into one target per id.
func buildGroupTargets(gc GroupConfig) ([]corpuswatch.Target, error) {
	var tmpl *template.Template
	if gc.NameTemplate != "" {
		// use missingkey=error to fail fast on unknown template variables
		var err error
		tmpl, err = template.New("name").Option("missingkey=error").Parse(gc.NameTemplate)
		if err != nil {
			return nil, err
		}
	}

	targets := make([]corpuswatch.Target, 0, len(gc.IDs))
	for _, id := range gc.IDs {
		var name string
		if tmpl != nil {
			data := map[string]string{"id": id.String(), "group": gc.Name}
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, data); err != nil {
				return nil, fmt.Errorf("group (%s) corpus %s: template execution failed: %w", gc.Name, id, err)
			}
			name = buf.String()
		}

		// group labels first, the group name label wins
		labels := make(map[string]string, len(gc.Labels)+1)
		for k, v := range gc.Labels {
			labels[k] = v
		}
		labels[groupLabel] = gc.Name

		t, err := buildTarget(CorpusConfig{
			ID:       id,
			Name:     name,
			Labels:   labels,
			Interval: gc.Interval,
		})
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	return targets, nil
}

// WatcherOptions converts the top-level settings into SDK options. Targets
// are not included; see [BuildTargets].
func WatcherOptions(cfg *Config) []corpuswatch.Option {
	opts := []corpuswatch.Option{
		corpuswatch.WithBackend(cfg.Backend.BaseURL),
		corpuswatch.WithPort(cfg.Port),
		corpuswatch.WithPollingInterval(cfg.PollInterval.Duration()),
	}
	if cfg.Backend.Token != "" {
		opts = append(opts, corpuswatch.WithToken(cfg.Backend.Token))
	}
	if cfg.Backend.Timeout != 0 {
		opts = append(opts, corpuswatch.WithRequestTimeout(cfg.Backend.Timeout.Duration()))
	}
	if cfg.Title != "" {
		opts = append(opts, corpuswatch.WithTitle(cfg.Title))
	}
	return opts
}

// TargetCount returns how many corpora the config watches.
func (c *Config) TargetCount() int {
	n := len(c.Corpora)
	for _, g := range c.Groups {
		n += len(g.IDs)
	}
	return n
}
