// Package poller implements the refresh loop behind every corpus detail view.
//
// A [Poller] fetches a remote resource, records the outcome in its
// [PollState] and schedules the next tick on a [Timer]. It runs until
// cancelled. Failures never stop the loop; they increment the error count and
// the next tick fires at the regular interval.
//
// The main components are:
//
//   - [Poller]: the Idle/Scheduled/Fetching state machine
//   - [PollState]: immutable snapshots handed to the owning view
//   - [Timer]: schedule-after-delay and cancel-by-handle primitive
//
// Package pollertest provides a manually driven [Timer] for deterministic tests.
package poller
