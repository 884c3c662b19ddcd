package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"social-relay/internal/domain/entity"
)

func TestFailSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	_, span := tp.Tracer("test").Start(context.Background(), "publish")
	FailSpan(span, entity.NewServiceError("twitter", entity.CodeRateLimited, "too many requests"))
	span.End()

	_, clean := tp.Tracer("test").Start(context.Background(), "published")
	FailSpan(clean, nil)
	clean.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	failed := spans[0]
	assert.Equal(t, codes.Error, failed.Status.Code)
	assert.Equal(t, "RATE_LIMITED", failed.Status.Description)
	require.Len(t, failed.Events, 1)
	attrs := map[string]string{}
	for _, kv := range failed.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "RATE_LIMITED", attrs["error.code"])
	assert.Equal(t, "true", attrs["error.retryable"])

	assert.Equal(t, codes.Unset, spans[1].Status.Code)
}
