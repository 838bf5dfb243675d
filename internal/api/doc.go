// Package api hosts the operator HTTP server for a running download session.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /status for the live session snapshot and rate-control state.
//   - GET /rate and POST /rate/reset to inspect or clear delay escalation.
package api
