package store

import (
	"cmp"
	"slices"
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore provides thread-safe storage with a publish-subscribe mechanism
// for real-time updates. Statuses are keyed by corpus id, with newer
// snapshots replacing older ones.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber to prevent blocking the entire system.
type MemoryStore struct {
	mu          sync.RWMutex
	statuses    map[string]CorpusStatus
	subscribers map[chan CorpusStatus]struct{}
	subMu       sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses:    make(map[string]CorpusStatus),
		subscribers: make(map[chan CorpusStatus]struct{}),
	}
}

// Update stores a [CorpusStatus] and notifies all subscribers.
//
// A status whose Seq is lower than the stored one is stale and dropped.
// Equal Seq values overwrite, so callers that never set Seq always win.
func (m *MemoryStore) Update(status CorpusStatus) bool {
	m.mu.Lock()
	if existing, ok := m.statuses[status.ID]; ok && existing.Seq > status.Seq {
		m.mu.Unlock()
		return false
	}
	m.statuses[status.ID] = status
	m.mu.Unlock()

	m.notifySubscribers(status)
	return true
}

// Get returns the stored status for id.
func (m *MemoryStore) Get(id string) (CorpusStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[id]
	return status, ok
}

// GetAll returns a snapshot of all stored statuses, ordered by name then id.
//
// The returned slice is a copy; modifications do not affect the store.
func (m *MemoryStore) GetAll() []CorpusStatus {
	m.mu.RLock()
	results := make([]CorpusStatus, 0, len(m.statuses))
	for _, status := range m.statuses {
		results = append(results, status)
	}
	m.mu.RUnlock()

	slices.SortFunc(results, func(a, b CorpusStatus) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan CorpusStatus {
	ch := make(chan CorpusStatus, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// updates will be sent. Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan CorpusStatus) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the status to all active subscribers.
//
// This is non-blocking: if a subscriber's channel buffer is full, the message
// is dropped for that subscriber rather than blocking the update path.
func (m *MemoryStore) notifySubscribers(status CorpusStatus) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- status:
		default:
			// subscriber is slow, drop the message
		}
	}
}
