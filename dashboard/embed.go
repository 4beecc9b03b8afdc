// Package dashboard provides the embedded web UI for mitemp.
//
// The dashboard is a single HTML page with inline CSS and JavaScript. It
// loads the reading history from "/api/history" and then follows
// "/api/sse" for live updates.
package dashboard

import "embed"

// Assets holds assets/index.html. The page contains a "{{.Title}}"
// placeholder that the server replaces with the configured title.
//
//go:embed assets/*
var Assets embed.FS
