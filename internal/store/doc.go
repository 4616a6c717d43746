// Package store provides storage and pub/sub functionality for corpus statuses.
//
// This package is internal to corpuswatch and holds the latest status of every
// watched corpus. It implements a publish-subscribe pattern for real-time
// updates to connected dashboard clients.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [CorpusStatus]: Storage representation of a corpus's status
//
// The store is designed for concurrent access with proper synchronization.
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the system).
//
// Statuses carry a sequence number. Pollers publish from timer goroutines, so
// an older snapshot can arrive after a newer one; the store keeps the newer.
package store
