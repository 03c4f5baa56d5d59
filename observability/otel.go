package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelTracer adapts the globally registered OpenTelemetry tracer provider to
// the Tracer interface. With no provider configured the global default is a
// no-op, so this is safe to wire unconditionally.
func OTelTracer(instrumentation string) Tracer {
	return otelTracer{t: otel.Tracer(instrumentation)}
}

type otelTracer struct {
	t trace.Tracer
}

func (o otelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := o.t.Start(ctx, name)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) SetTag(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprint(v)))
	}
}

func (s otelSpan) SetError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) Finish() { s.span.End() }
