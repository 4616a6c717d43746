// Package corpuswatch keeps a live dashboard of corpora on a
// corpus-management backend.
//
// For every watched corpus corpuswatch opens a view that checks the user's
// permissions, then refreshes the corpus on a fixed interval: its import
// state, its saved queries and its annotation hierarchy once imported, and
// the status of a running import task. The latest state of every corpus is
// served as a web dashboard, a JSON API and a Server-Sent Events stream.
//
// # Quick Start
//
//	t, _ := corpuswatch.NewTarget("12", corpuswatch.WithDisplayName("TIMIT"))
//	w, _ := corpuswatch.New(
//	    corpuswatch.WithBackend("https://pgdb.example.org"),
//	    corpuswatch.WithToken(os.Getenv("PGDB_TOKEN")),
//	    corpuswatch.WithTarget(t),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	w.Start(ctx) // blocks until context is cancelled
//
// # Refresh Cycle
//
// Each view refreshes immediately when opened and then once per interval,
// measured from the end of the previous refresh. A failed refresh keeps the
// last good data and marks the corpus [StatusUnreachable] until a refresh
// succeeds again. Starting an import through the dashboard schedules an
// immediate refresh so the new task shows up without waiting an interval.
//
// A corpus the user cannot query is skipped when the watcher starts.
//
// # Architecture
//
// corpuswatch consists of several internal packages (under internal/):
//
//   - internal/poller: generic single-resource poll loop with cancellation
//   - internal/backend: REST client for the corpus-management API
//   - internal/corpus: the per-corpus view that owns a poller
//   - internal/store: in-memory storage with pub/sub for real-time updates
//   - internal/server: HTTP server with REST API and Server-Sent Events
//   - internal/metrics: Prometheus collectors
//   - dashboard: embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package corpuswatch
