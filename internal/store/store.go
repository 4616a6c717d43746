package store

import "time"

// CorpusStatus is the current status of one watched corpus in storage.
//
// CorpusStatus is the storage representation of a corpus detail view,
// optimized for JSON serialization (used by the REST API and SSE). It is
// decoupled from the view's types to allow independent evolution.
type CorpusStatus struct {
	// ID is the backend corpus id and the storage key.
	ID string `json:"id"`

	// Name is the display name, falling back to the backend corpus name.
	Name string `json:"name"`

	// Status is the derived state (e.g., "ready", "importing", "unreachable").
	Status string `json:"status"`

	// Labels contains key-value metadata for grouping and filtering.
	Labels map[string]string `json:"labels"`

	Imported  bool   `json:"imported"`
	Busy      bool   `json:"busy"`
	TaskID    string `json:"task_id,omitempty"`
	CanEnrich bool   `json:"can_enrich"`

	// ErrorCount is the number of consecutive failed polls.
	ErrorCount int `json:"error_count"`

	// Error contains the error message of the last poll if it failed.
	Error *string `json:"error"`

	// ErrorMessage is a backend-reported problem that did not fail the poll,
	// such as an unreachable hierarchy or a failed import task.
	ErrorMessage string `json:"error_message,omitempty"`

	Properties  map[string][]string `json:"properties,omitempty"`
	Subsets     map[string][]string `json:"subsets,omitempty"`
	QueryCounts map[string]int      `json:"query_counts,omitempty"`

	// CheckedAt is the timestamp of the last completed poll.
	CheckedAt time.Time `json:"checked_at"`

	// Seq orders snapshots of the same corpus. Updates with a lower Seq than
	// the stored one are ignored.
	Seq uint64 `json:"-"`
}

// Store defines the interface for storing and subscribing to status updates.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a status and notifies all subscribers. Statuses are keyed
	// by ID. It reports false, without notifying, when the stored status has
	// a higher Seq.
	Update(status CorpusStatus) bool

	// Get returns the status of one corpus.
	Get(id string) (CorpusStatus, bool)

	// GetAll returns all currently stored statuses ordered by name.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []CorpusStatus

	// Subscribe returns a channel that receives status updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan CorpusStatus

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan CorpusStatus)
}
