// Package server provides the HTTP server for the mitemp dashboard and API.
//
// This package is internal to mitemp and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML dashboard at "/"
//   - REST API: "/api/reading" for the latest reading, "/api/history" for
//     the in-memory history
//   - Server-Sent Events: Real-time readings at "/api/sse"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
