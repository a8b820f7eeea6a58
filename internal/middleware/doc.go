// Package middleware holds the HTTP middleware of the serve command:
// request IDs that double as log trace IDs, OpenTelemetry spans and
// request metrics, request deadlines and a token-bucket limiter for run
// submissions.
package middleware
