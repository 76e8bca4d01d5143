package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName scopes every span the pipeline starts
const TracerName = "storepulse"

// Span attribute keys recorded by the fetcher, sync and preload stages
const (
	SpanAttrCollection = "storefront.collection"
	SpanAttrCacheKey   = "cache.key"
	SpanAttrPages      = "pages"
	SpanAttrRecords    = "records"
	SpanAttrPartial    = "partial"
	SpanAttrPhase      = "sync.phase"
	SpanAttrRunID      = "sync.run_id"
)

// SpanOption adjusts a span before it starts
type SpanOption func(*spanSettings)

type spanSettings struct {
	kind  trace.SpanKind
	attrs []attribute.KeyValue
}

func (s *spanSettings) startOptions() []trace.SpanStartOption {
	out := []trace.SpanStartOption{trace.WithSpanKind(s.kind)}
	if len(s.attrs) > 0 {
		out = append(out, trace.WithAttributes(s.attrs...))
	}
	return out
}

// WithAttribute attaches key=value at span start
func WithAttribute(key string, value any) SpanOption {
	return func(s *spanSettings) {
		s.attrs = append(s.attrs, attr(key, value))
	}
}

// WithSpanKind overrides the default internal kind. Storefront calls use
// trace.SpanKindClient.
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(s *spanSettings) { s.kind = kind }
}

// StartSpan opens a span on the global provider. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	settings := spanSettings{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(&settings)
	}
	return otel.Tracer(TracerName).Start(ctx, name, settings.startOptions()...)
}

// StartServiceSpan names the span "<component>.<operation>", for example
// "fetcher.orders" or "sync.coupons".
func StartServiceSpan(ctx context.Context, component, operation string, opts ...SpanOption) (context.Context, trace.Span) {
	return StartSpan(ctx, component+"."+operation, opts...)
}

// SetAttributes takes alternating keys and values. Pairs whose key is not
// a string are skipped, as is a trailing key without a value.
func SetAttributes(span trace.Span, kv ...any) {
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 1; i < len(kv); i += 2 {
		if key, ok := kv[i-1].(string); ok {
			attrs = append(attrs, attr(key, kv[i]))
		}
	}
	span.SetAttributes(attrs...)
}

// RecordError marks the span failed. A nil err leaves it untouched.
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks a completed stage explicitly successful
func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

func attr(key string, value any) attribute.KeyValue {
	k := attribute.Key(key)
	switch v := value.(type) {
	case string:
		return k.String(v)
	case bool:
		return k.Bool(v)
	case int:
		return k.Int(v)
	case int64:
		return k.Int64(v)
	case float64:
		return k.Float64(v)
	case []string:
		return k.StringSlice(v)
	case []int64:
		return k.Int64Slice(v)
	case fmt.Stringer:
		return k.String(v.String())
	default:
		return k.String(fmt.Sprint(v))
	}
}
