package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewDisabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)

	// Disabled telemetry still hands out working no-op instruments.
	assert.NotNil(t, tel.Tracer("pensiond.classifier"))
	assert.NotNil(t, tel.Meter("pensiond.agent"))
	assert.False(t, tel.IsEnabled())

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
	assert.Empty(t, health.Reason)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: true})
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNilInstanceIsSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("x")
		_ = tel.Meter("x")
		_ = tel.LoggerProvider()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
		tel.SetLoggerProvider(nil)
	})

	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestShutdownMarksUnhealthy(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
	assert.False(t, tel.IsEnabled())
}

func TestDegradedHealthCarriesReason(t *testing.T) {
	tel := &Telemetry{config: NewDefaultConfig()}
	tel.healthy.Store(true)

	tel.degrade("tracer provider: %v", "dial failed")
	tel.degrade("meter provider: %v", "also failed")

	health := tel.Health()
	assert.True(t, health.Degraded)
	// The first cause wins; later failures don't overwrite it.
	assert.Contains(t, health.Reason, "tracer provider")
}

func TestTestTelemetryRecordsSpans(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("pensiond.orchestrator")
	_, span := tracer.Start(context.Background(), "pipeline.process")
	span.SetAttributes(
		attribute.String("query.disposition", "DELIVERED"),
		attribute.Int("query.retries", 1),
	)
	span.End()

	tt.RequireSpan(t, "pipeline.process")
	tt.RequireSpanAttr(t, "pipeline.process", "query.disposition", "DELIVERED")
	tt.RequireSpanAttr(t, "pipeline.process", "query.retries", int64(1))
	assert.Nil(t, tt.Span("no-such-span"))
}

func TestTestTelemetryCollectsMetrics(t *testing.T) {
	tt := NewTestTelemetry()

	meter := tt.Meter("pensiond.agent")
	counter, err := meter.Int64Counter("agent.iterations")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rm, err := tt.Collect(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rm.ScopeMetrics)
}

func TestTestTelemetryShutdown(t *testing.T) {
	tt := NewTestTelemetry()

	_, span := tt.Tracer("pensiond.tools").Start(context.Background(), "tools.Execute")
	span.End()

	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.Health().Healthy)
}
