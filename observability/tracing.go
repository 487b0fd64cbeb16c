package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/growthbook/notify"

// Tracer provides OpenTelemetry tracing for dispatch and delivery.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDispatchSpan starts a span covering one dispatch job.
func (t *Tracer) StartDispatchSpan(ctx context.Context, eventID string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "notify.dispatch",
		trace.WithAttributes(attribute.String("notify.event_id", eventID)),
	)
}

// EndDispatchSpan ends a dispatch span, recording how many handlers failed.
func (t *Tracer) EndDispatchSpan(span trace.Span, handlers, failures int) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("notify.handlers", handlers),
		attribute.Int("notify.handler_failures", failures),
	)
	if failures > 0 {
		span.SetStatus(codes.Error, "handler failures")
	}
	span.End()
}

// StartDeliverySpan starts a span for one webhook delivery.
func (t *Tracer) StartDeliverySpan(ctx context.Context, eventID, webhookID string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "notify.delivery",
		trace.WithAttributes(
			attribute.String("notify.event_id", eventID),
			attribute.String("notify.webhook_id", webhookID),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, err string) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("notify.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("notify.error", err))
		span.SetStatus(codes.Error, err)
	}
	span.End()
}
