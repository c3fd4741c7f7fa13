package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory so tests can assert
// on the instrumentation a code path emits.
type TestTelemetry struct {
	*Telemetry

	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry builds an enabled instance backed by an in-memory span
// recorder and a manual metric reader.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(spans))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tel := &Telemetry{
		config:         cfg,
		tracerProvider: tp,
		meterProvider:  mp,
	}
	tel.healthy.Store(true)

	return &TestTelemetry{Telemetry: tel, spans: spans, reader: reader}
}

// Install claims the process-global OpenTelemetry providers so packages
// holding package-level tracers record here. The global delegates bind to
// the first real provider installed in a binary, so call Install from at
// most one test per package.
func (t *TestTelemetry) Install() {
	otel.SetTracerProvider(t.tracerProvider)
	otel.SetMeterProvider(t.meterProvider)
}

// EndedSpans returns every span finished so far.
func (t *TestTelemetry) EndedSpans() []trace.ReadOnlySpan {
	return t.spans.Ended()
}

// Span returns the first ended span with the given name, or nil.
func (t *TestTelemetry) Span(name string) trace.ReadOnlySpan {
	for _, s := range t.EndedSpans() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// RequireSpan fails the test when no span with the given name ended.
func (t *TestTelemetry) RequireSpan(tb testing.TB, name string) trace.ReadOnlySpan {
	tb.Helper()
	s := t.Span(name)
	if s == nil {
		tb.Fatalf("span %q not recorded, have: %v", name, t.spanNames())
	}
	return s
}

// RequireSpanAttr fails the test unless the named span carries the
// attribute with the wanted value.
func (t *TestTelemetry) RequireSpanAttr(tb testing.TB, spanName, key string, want interface{}) {
	tb.Helper()
	s := t.RequireSpan(tb, spanName)

	for _, attr := range s.Attributes() {
		if string(attr.Key) == key {
			if got := attrValue(attr.Value); got != want {
				tb.Errorf("span %q attr %q = %v, want %v", spanName, key, got, want)
			}
			return
		}
	}
	tb.Errorf("span %q missing attribute %q", spanName, key)
}

// Collect drains the manual metric reader once.
func (t *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.reader.Collect(ctx, &rm)
	return rm, err
}

func (t *TestTelemetry) spanNames() []string {
	spans := t.EndedSpans()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	return names
}

func attrValue(v attribute.Value) interface{} {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.BOOL:
		return v.AsBool()
	default:
		return v.AsInterface()
	}
}
