// Package observability carries the logging and tracing abstractions used
// across the ingestion core. Everything defaults to no-ops so library users
// pay nothing unless they plug an implementation in.
package observability

import "context"

// Logger is the structured logging interface used by the core.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is one structured log attribute.
type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

// String builds a string field.
func String(key, value string) Field { return stringField{key, value} }

// Int builds an int field.
func Int(key string, value int) Field { return intField{key, value} }

// Error builds an error field.
func Error(key string, err error) Field { return errorField{key, err} }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// Tracer provides tracing hooks for ingestion operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents one traced operation.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Span tag names emitted by the ingestion core.
const (
	TagPageCount  = "pdf.pages.count"
	TagImageCount = "pdf.images.count"
	TagTextBytes  = "pdf.text.bytes"
	TagEncrypted  = "pdf.encrypted"
	TagDegraded   = "pdf.degraded"
)
