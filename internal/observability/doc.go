// Package observability groups the logging and tracing helpers shared by
// the worker binary, the delivery queue and the platform transport.
//
// Subpackages:
//   - logging: slog construction and context propagation
//   - tracing: OpenTelemetry spans for API requests
//
// Prometheus metrics live next to the code they measure, in each
// package's metrics.go.
package observability
