// Package tracing provides OpenTelemetry tracing integration.
//
// Spans are created for every inbound API request (Middleware) and every
// outbound platform call made by the transport client. No exporter is
// configured here; cmd/worker installs a tracer provider when one is wanted,
// and tests use sdk/trace/tracetest.
package tracing
