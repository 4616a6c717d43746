// Package server provides the HTTP server for the corpuswatch dashboard and API.
//
// This package is internal to corpuswatch and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - REST API: JSON endpoints under "/api/corpora" for status snapshots and
//     for starting imports and enrichments
//   - Server-Sent Events: Real-time updates at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics"
//
// Routing uses chi. The server supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
//
// Users of the corpuswatch library should not need to interact with this
// package directly. The server is started automatically by [corpuswatch.Watcher.Start].
package server
