// Package api hosts the HTTP server, middleware, and REST handlers for
// on-demand scrape runs. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to submit a batch of queries; each run gets its own session.
//   - GET /v1/runs/{run_id} and /v1/runs/{run_id}/jobs for status and records.
//   - POST /v1/runs/{run_id}/cancel to close the run's session.
package api
