// Package http exposes the pipeline over HTTP for the serve command.
//
// Handlers stay thin: they decode the request, call a service from the
// services package and render the result with go-chi/render. Failures go
// through errors.ErrorHandler and come back as RFC 7807 problem documents.
//
// Routes:
//
//	GET  /healthz                          liveness summary
//	GET  /healthz/ready                    inputs present for a run
//	GET  /healthz/live                     process liveness
//	GET  /version                          build information
//	GET  /metrics                          Prometheus exposition
//	POST /api/v1/runs                      start a run in the background
//	GET  /api/v1/runs                      active run then recorded runs
//	GET  /api/v1/runs/active               the run in progress
//	GET  /api/v1/runs/{id}                 one run
//	GET  /api/v1/tables                    persisted tables and columns
//	GET  /api/v1/tables/{name}/columns     columns of one table
//	GET  /api/v1/tables/{name}/export      the table as CSV
package http
