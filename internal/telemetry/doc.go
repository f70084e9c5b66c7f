// Package telemetry provides OpenTelemetry instrumentation for runlogd.
//
// Traces and metrics are exported over OTLP (gRPC by default, HTTP when the
// endpoint carries a scheme). Channels emit one span per persisted batch;
// the HTTP surface records request metrics through the meter.
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	ctx, span := tel.Tracer("runlogd/channel").Start(ctx, "channel.persist_batch")
//	defer span.End()
//
// Telemetry failures do not stop the daemon. If a provider cannot be
// initialized the instance degrades and returns no-op providers.
//
// Tests use TestTelemetry, which records spans in memory and collects
// metrics through a ManualReader:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
