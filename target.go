package corpuswatch

import (
	"errors"
	"strings"
	"time"
)

// Target is a corpus to watch.
//
// Target is immutable after creation via [NewTarget]. All fields are private
// with getter methods that return copies of mutable data (maps), so a target
// cannot be modified after construction.
//
// Targets are configured using [TargetOption] functions such as
// [WithDisplayName], [WithLabels] and [WithInterval].
type Target struct {
	corpusID    string
	displayName string
	labels      map[string]string
	interval    time.Duration
}

// CorpusID returns the backend id of the corpus.
func (t Target) CorpusID() string {
	return t.corpusID
}

// DisplayName returns the name shown on the dashboard.
// Returns empty string if not set, in which case the backend's corpus name
// is used once the first refresh completes.
func (t Target) DisplayName() string {
	return t.displayName
}

// Labels returns a copy of the target's labels.
// Returns nil if no labels are set.
func (t Target) Labels() map[string]string {
	return copyMap(t.labels)
}

// Interval returns the target's refresh interval.
// Returns 0 if none was set, meaning the global interval configured via
// [WithPollingInterval] applies.
func (t Target) Interval() time.Duration {
	return t.interval
}

// NewTarget creates a [Target] for the corpus with the given backend id.
//
// Options are applied in order. See [WithDisplayName], [WithLabels] and
// [WithInterval].
//
// Returns an error if the id is empty or any option is invalid.
//
// Example:
//
//	t, err := corpuswatch.NewTarget("12",
//	    corpuswatch.WithDisplayName("TIMIT"),
//	    corpuswatch.WithLabels("lab", "phonetics"),
//	)
func NewTarget(corpusID string, opts ...TargetOption) (Target, error) {
	corpusID = strings.TrimSpace(corpusID)
	if corpusID == "" {
		return Target{}, errors.New("corpus id cannot be empty")
	}
	if strings.Contains(corpusID, "/") {
		return Target{}, errors.New("corpus id cannot contain '/'")
	}

	cfg := &targetConfig{
		labels: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Target{}, err
		}
	}

	return Target{
		corpusID:    corpusID,
		displayName: cfg.displayName,
		labels:      cfg.labels,
		interval:    cfg.interval,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
