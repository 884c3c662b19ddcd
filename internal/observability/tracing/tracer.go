package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"social-relay/internal/domain/entity"
)

const instrumentationName = "social-relay"

// GetTracer looks the tracer up on every call, so spans follow a provider
// installed after package init.
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// FailSpan marks span as failed with a classified platform error. The error
// code becomes the status description so traces group by failure kind.
func FailSpan(span trace.Span, se *entity.ServiceError) {
	if se == nil {
		return
	}
	span.SetAttributes(
		attribute.String("error.code", string(se.Code)),
		attribute.Bool("error.retryable", se.Retryable()),
	)
	span.RecordError(se)
	span.SetStatus(codes.Error, string(se.Code))
}
