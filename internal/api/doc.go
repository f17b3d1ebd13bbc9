// Package api implements the HTTP REST API and WebSocket server for
// Gray Logic Power.
//
// This package provides:
//   - REST endpoints for transition control, device inspection, and history
//   - WebSocket hub for real-time transition progress broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server is the transition driver: POST /power/suspend walks
// registered devices down through the suspend phases, and
// POST /power/resume walks them back up. Progress events flow out
// through the telemetry observer to the WebSocket hub, so dashboards
// see per-phase and per-device results as they happen.
//
// # Concurrency
//
// Only one transition runs at a time; a second suspend or resume
// request while one is in flight receives 409 Conflict. Read endpoints
// are always available, including mid-transition.
package api
