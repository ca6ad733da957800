// Package oteltracer implements the gocbcore request tracer on OpenTelemetry.
package oteltracer

import (
	"context"
	"fmt"
	"time"

	"github.com/couchbase/gocbcore/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/couchbaselabs/gocbbridge"

// Tracer creates OpenTelemetry spans for bridge and gocbcore requests. Span contexts
// passed between them are context.Context values carrying the OpenTelemetry span.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a Tracer using provider. A nil provider uses the global provider.
func New(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer: provider.Tracer(instrumentationName),
	}
}

// RequestSpan implements gocbcore.RequestTracer.
func (t *Tracer) RequestSpan(parentContext gocbcore.RequestSpanContext, operationName string) gocbcore.RequestSpan {
	parent, ok := parentContext.(context.Context)
	if !ok || parent == nil {
		parent = context.Background()
	}

	ctx, span := t.tracer.Start(parent, operationName, trace.WithSpanKind(trace.SpanKindClient))
	return &Span{
		ctx:  ctx,
		span: span,
	}
}

// Span wraps an OpenTelemetry span as a gocbcore.RequestSpan.
type Span struct {
	ctx  context.Context
	span trace.Span
}

// ParentSpan wraps the span carried by ctx for use as Options.Span, so bridge
// operations are recorded as its children. The bridge never ends a parent span.
func ParentSpan(ctx context.Context) *Span {
	return &Span{
		ctx:  ctx,
		span: trace.SpanFromContext(ctx),
	}
}

// End implements gocbcore.RequestSpan.
func (s *Span) End() {
	s.span.End()
}

// Context implements gocbcore.RequestSpan.
func (s *Span) Context() gocbcore.RequestSpanContext {
	return s.ctx
}

// SetAttribute implements gocbcore.RequestSpan.
func (s *Span) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

// AddEvent implements gocbcore.RequestSpan.
func (s *Span) AddEvent(name string, timestamp time.Time) {
	s.span.AddEvent(name, trace.WithTimestamp(timestamp))
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case uint32:
		return attribute.Int64(key, int64(v))
	case uint16:
		return attribute.Int64(key, int64(v))
	case float64:
		return attribute.Float64(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Microseconds())
	case fmt.Stringer:
		return attribute.String(key, v.String())
	}
	return attribute.String(key, fmt.Sprint(value))
}
