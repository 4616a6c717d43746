// Package dashboard provides the embedded web UI assets for corpuswatch.
//
// The assets are embedded at compile time so the binary can be deployed
// without external files. The server package serves them at "/".
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Dashboard page with inline CSS and JavaScript
//
// index.html carries a {{.Title}} placeholder that the server replaces
// with the configured title.
//
//go:embed assets/*
var Assets embed.FS
