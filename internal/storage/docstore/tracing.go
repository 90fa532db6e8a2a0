package docstore

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/catalogd/registry/internal/tracing"
)

// startSpan starts a client span for one document store operation
func startSpan(ctx context.Context, operation, container, partitionKey, id string) (context.Context, trace.Span) {
	tracer := otel.Tracer("registry.docstore")
	ctx, span := tracer.Start(ctx, "docstore."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String(tracing.AttrContainer, container),
		attribute.String(tracing.AttrPartitionKey, partitionKey),
		attribute.String(tracing.AttrOperation, operation),
	)
	if id != "" {
		span.SetAttributes(attribute.String(tracing.AttrDocumentID, id))
	}
	return ctx, span
}
