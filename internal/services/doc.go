// Package services sits between the HTTP handlers and the pipeline. It
// keeps request validation, run bookkeeping and database reads out of the
// handlers.
//
// # Available Services
//
//	- DataService: lists persisted tables, their columns and the run log
//	- OperationService: validates run requests and hands them to the
//	  operations.Manager
//	- HealthService: liveness, readiness and version reports
//
// # Error Handling
//
// Services return sentinel or wrapped domain errors (store.ErrTableNotFound,
// store.ErrRunNotFound, operations.ErrRunInProgress, validator errors)
// that the errors package turns into problem responses.
//
// # Testing
//
// Services are tested against SQLite files under t.TempDir() and a Manager
// built from operations/testutil mock stages.
package services
