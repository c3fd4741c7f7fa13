// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry)
//   - Automatic context field injection (trace_id, query, session)
//   - Defense-in-depth redaction of member identifiers and credentials
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithQueryID(ctx, "q_123")
//	ctx = logging.WithSessionID(ctx, "sess_123")
//	logger.Info(ctx, "query classified", zap.String("topic", "balance"))
//
// Member identifiers never appear in plain text. Use MemberHash:
//
//	logger.Info(ctx, "profile resolved",
//	    logging.MemberHash("member", memberID))
//
// # Redaction
//
// Redaction happens at multiple layers:
//  1. Domain primitives (config.Secret type)
//  2. Encoder-level field name filtering
//  3. Encoder-level pattern matching
//
// # Sampling
//
// Level-aware sampling prevents log floods; Error and above are never
// sampled. Disable for debugging with cfg.Sampling.Enabled = false.
//
// # Testing
//
// Use TestLogger for assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
