package poller

import "time"

// State is the lifecycle position of a [Poller].
//
//	Idle -> Scheduled (Start, Reschedule)
//	Scheduled -> Fetching (timer fires)
//	Fetching -> Scheduled (fetch completes, success or failure)
//	any -> Idle (Cancel)
type State int

const (
	// StateIdle means no tick is pending and the poller is not active.
	StateIdle State = iota

	// StateScheduled means exactly one tick is pending.
	StateScheduled

	// StateFetching means a fetch is in flight.
	StateFetching
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateFetching:
		return "fetching"
	default:
		return "unknown"
	}
}

// PollState is a point-in-time copy of a poller's state.
//
// PollState values are handed to the owning view through [Poller.Snapshot]
// and [Config.OnUpdate]; the view never mutates the poller's state directly.
type PollState[T any] struct {
	// Name identifies the poller in logs and metrics.
	Name string

	// Active is false before Start and after Cancel.
	Active bool

	// Pending reports whether a tick is scheduled.
	Pending bool

	// State is the current lifecycle state.
	State State

	// Interval is the regular delay between ticks.
	Interval time.Duration

	// ErrorCount is the number of consecutive failed fetches.
	// A successful fetch resets it to zero.
	ErrorCount int

	// LastError is the error from the most recent fetch, nil after a success.
	LastError error

	// Resource is the last successfully fetched value. It is replaced
	// wholesale on every successful fetch.
	Resource T

	// HasResource is false until the first successful fetch.
	HasResource bool

	// UpdatedAt is when Resource was last replaced.
	UpdatedAt time.Time

	// Ticks counts completed fetches, successful or not.
	Ticks int

	// Version increases on every state change. Consumers receiving snapshots
	// from several goroutines can drop any snapshot older than one already seen.
	Version uint64
}
