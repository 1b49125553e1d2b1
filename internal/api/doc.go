// Package api hosts the HTTP server, middleware, and handlers of the local
// progress service. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/progress/{subject_id} returns the subject's step board.
//   - POST /api/progress/stop/{subject_id} drops the board.
//   - POST /api/progress/start/{subject_id} begins a simulated job.
package api
