package corpuswatch

import (
	"time"

	"github.com/jpalmerr/corpuswatch/internal/corpus"
	"github.com/jpalmerr/corpuswatch/internal/poller"
)

// Status is the state of a watched corpus as shown on the dashboard.
//
// Status is a string type that holds one of the predefined values below.
// Using a string type keeps JSON payloads and log lines readable.
type Status string

const (
	// StatusNotImported means the corpus exists but has not been imported.
	StatusNotImported Status = "not_imported"

	// StatusImporting means an import is running for a corpus that has
	// never been imported.
	StatusImporting Status = "importing"

	// StatusReady means the corpus is imported and idle.
	StatusReady Status = "ready"

	// StatusBusy means the corpus is imported but a task is running on it,
	// such as an enrichment or a re-import.
	StatusBusy Status = "busy"

	// StatusUnreachable means the most recent refresh failed.
	StatusUnreachable Status = "unreachable"

	// StatusUnknown means no refresh has completed yet.
	StatusUnknown Status = "unknown"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// statusOf derives the dashboard status from a view's poll state.
// A failing refresh wins over whatever the last successful one said.
func statusOf(s poller.PollState[corpus.Detail]) Status {
	if s.ErrorCount > 0 {
		return StatusUnreachable
	}
	if !s.HasResource {
		return StatusUnknown
	}

	c := s.Resource.Corpus
	switch {
	case c.Busy && !c.Imported:
		return StatusImporting
	case c.Busy:
		return StatusBusy
	case c.Imported:
		return StatusReady
	default:
		return StatusNotImported
	}
}

// StatusResult holds the outcome of one refresh of a watched corpus.
//
// StatusResult values are handed to callbacks registered with
// [WithStatusCallback]. Maps and slices are copies owned by the receiver.
type StatusResult struct {
	// CorpusID is the backend id of the corpus.
	CorpusID string

	// Name is the display name: the target's display name if set, otherwise
	// the name the backend reports.
	Name string

	// Status is the derived state of the corpus.
	Status Status

	// Labels contains the key-value metadata associated with the target.
	Labels map[string]string

	// Imported and Busy mirror the backend's flags from the last successful
	// refresh.
	Imported bool
	Busy     bool

	// TaskID is the import task being followed, if any.
	TaskID string

	// CanEnrich reports whether the user may run enrichments on the corpus.
	CanEnrich bool

	// ErrorCount is the number of consecutive failed refreshes.
	ErrorCount int

	// Error is the error from the most recent refresh, nil after a success.
	Error error

	// ErrorMessage is the backend's message for a failed hierarchy load or
	// import task. It is independent of Error.
	ErrorMessage string

	// Properties and Subsets list, per annotation type, the property names
	// and subset labels of the corpus hierarchy.
	Properties map[string][]string
	Subsets    map[string][]string

	// QueryCounts is the number of saved queries per annotation type.
	QueryCounts map[string]int

	// CheckedAt is when the refresh completed.
	CheckedAt time.Time
}
