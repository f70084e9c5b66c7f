package sink

import (
	"context"

	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink writes every record as a structured log entry.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink writing to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// PersistBatch logs each record at its own severity.
func (s *LogSink) PersistBatch(_ context.Context, channelKey string, records []event.Record) error {
	for _, r := range records {
		fields := []zap.Field{
			zap.String("channel", channelKey),
			zap.String("thread", r.ThreadKey),
			zap.Stringer("kind", r.Kind),
			zap.Stringer("event_id", r.ID),
			zap.Time("corrected_timestamp", r.CorrectedTime),
		}
		if r.RunID != 0 {
			fields = append(fields, zap.Int64("run_id", r.RunID))
		}
		if r.SuiteID != 0 {
			fields = append(fields, zap.Int64("suite_id", r.SuiteID))
		}
		if r.TestCaseID != 0 {
			fields = append(fields, zap.Int64("testcase_id", r.TestCaseID))
		}
		if r.Name != "" {
			fields = append(fields, zap.String("name", r.Name))
		}
		if len(r.Attributes) > 0 {
			fields = append(fields, zap.Any("attributes", r.Attributes))
		}
		// Fatal and panic records must not terminate the daemon.
		lvl := min(r.Severity, zapcore.ErrorLevel)
		if ce := s.logger.Check(lvl, r.Message); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close flushes the logger.
func (s *LogSink) Close() error {
	_ = s.logger.Sync()
	return nil
}
