// Package api hosts the HTTP server and handlers. Routes:
//   - GET / returns a plain-text welcome banner.
//   - POST /audit runs one audit and returns the flattened report.
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
package api
