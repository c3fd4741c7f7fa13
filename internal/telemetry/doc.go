// Package telemetry provides OpenTelemetry instrumentation for pensiond.
//
// # Overview
//
// This package implements distributed tracing and metrics collection using the
// OpenTelemetry Go SDK. It exports telemetry data to an OTEL Collector.
//
// # Usage
//
// Create telemetry instance:
//
//	cfg := telemetry.NewDefaultConfig()
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("pensiond.classifier")
//	ctx, span := tracer.Start(ctx, "classifier.Classify")
//	defer span.End()
//
//	meter := tel.Meter("pensiond.agent")
//	counter, _ := meter.Int64Counter("agent.iterations")
//	counter.Add(ctx, 1)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  service_name: "pensiond"
//	  sampling:
//	    rate: 1.0  # 100% in dev, lower in prod
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//
// # Error Handling
//
// Telemetry failures do not crash the application. If telemetry cannot be
// initialized, the instance degrades gracefully and returns no-op providers.
//
// # Testing
//
// TestTelemetry records spans and metrics in memory. Install claims the
// process-global providers so packages with package-level tracers record
// into it:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install()
//	// ... run the code under test ...
//	tt.RequireSpan(t, "pipeline.process")
//	tt.RequireSpanAttr(t, "pipeline.process", "query.disposition", "DELIVERED")
package telemetry
