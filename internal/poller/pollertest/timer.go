// Package pollertest provides a manually driven timer for testing code built
// on the poller package.
package pollertest

import (
	"sort"
	"sync"
	"time"

	"github.com/jpalmerr/corpuswatch/internal/poller"
)

// ManualTimer is a [poller.Timer] whose clock only moves when Advance is called.
//
// Callbacks run synchronously inside Advance, on the caller's goroutine, in
// deadline order. The timer's own lock is released while a callback runs, so
// callbacks may schedule further callbacks.
type ManualTimer struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  int
	entries map[int]*entry
	maxSeen int
}

type entry struct {
	id       int
	deadline time.Duration
	fn       func()
}

type handle struct {
	t  *ManualTimer
	id int
}

// NewManualTimer returns a ManualTimer at elapsed time zero.
func NewManualTimer() *ManualTimer {
	return &ManualTimer{entries: make(map[int]*entry)}
}

// Schedule implements [poller.Timer].
func (m *ManualTimer) Schedule(d time.Duration, fn func()) poller.TimerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.entries[m.nextID] = &entry{id: m.nextID, deadline: m.now + d, fn: fn}
	if len(m.entries) > m.maxSeen {
		m.maxSeen = len(m.entries)
	}
	return handle{t: m, id: m.nextID}
}

func (h handle) Cancel() bool {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	if _, ok := h.t.entries[h.id]; !ok {
		return false
	}
	delete(h.t.entries, h.id)
	return true
}

// Advance moves the clock forward by d, running every callback whose
// deadline falls within the window.
func (m *ManualTimer) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.earliestLocked()
		if next == nil || next.deadline > target {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.deadline
		delete(m.entries, next.id)
		m.mu.Unlock()

		next.fn()
	}
}

// Elapsed returns the current manual time since creation.
func (m *ManualTimer) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of scheduled callbacks that have neither fired
// nor been cancelled.
func (m *ManualTimer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MaxPending returns the highest number of simultaneously pending callbacks
// observed since creation.
func (m *ManualTimer) MaxPending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeen
}

// Deadlines returns the elapsed-time deadlines of all pending callbacks in order.
func (m *ManualTimer) Deadlines() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]time.Duration, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.deadline)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *ManualTimer) earliestLocked() *entry {
	var best *entry
	for _, e := range m.entries {
		if best == nil || e.deadline < best.deadline || (e.deadline == best.deadline && e.id < best.id) {
			best = e
		}
	}
	return best
}
