// Package logging provides runlogd's own structured diagnostics with
// OpenTelemetry integration.
//
// It is not the event pipeline: producer events travel through the appender
// and channels. This package records what the daemon itself does (channel
// creation, lineage resolution failures, persistence errors).
//
// Logger wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry)
//   - Automatic context field injection (trace_id, thread.key, run.id)
//   - Per-level sampling (errors never sampled)
//
// # Usage
//
//	cfg, err := logging.NewConfigFromObservability(appCfg.Observability)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	defer logger.Sync()
//
//	ctx = logging.WithThreadKey(ctx, "worker-3")
//	logger.Info(ctx, "channel created", zap.Int("capacity", 10000))
//
// # Sampling
//
// Level-aware sampling prevents log floods:
//   - Trace: first 1 per second, drop rest
//   - Debug: first 10 per second, drop rest
//   - Info: first 100, then 1 every 10
//   - Warn: first 100, then 1 every 100
//   - Error+: never sampled
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
