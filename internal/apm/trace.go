package apm

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceID returns the active span's trace id, or "" outside a sampled span.
// It fits logger.TraceIDFn.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
