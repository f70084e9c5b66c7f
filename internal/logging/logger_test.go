package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.NotNil(t, logger.zap)
	assert.Equal(t, cfg, logger.config)
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewLoggerTo_WritesJSONWithConstantFields(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Sampling.Enabled = false
	var buf bytes.Buffer

	logger, err := NewLoggerTo(cfg, nil, &buf)
	require.NoError(t, err)

	logger.Trace(WithThreadKey(context.Background(), "worker-1"), "resolved", zap.Int("depth", 2))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "trace", entry["level"])
	assert.Equal(t, "resolved", entry["msg"])
	assert.Equal(t, "runlogd", entry["service"])
	assert.Equal(t, "worker-1", entry["thread.key"])
	assert.EqualValues(t, 2, entry["depth"])
}

func TestNewLoggerTo_ConsoleFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "console"
	var buf bytes.Buffer

	logger, err := NewLoggerTo(cfg, nil, &buf)
	require.NoError(t, err)
	logger.Info(context.Background(), "channel created")

	assert.True(t, strings.Contains(buf.String(), "channel created"))
	assert.False(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{
		zap:    zap.New(core),
		config: NewDefaultConfig(),
	}

	ctx := WithRunID(context.Background(), 42)

	tests := []struct {
		name    string
		logFunc func()
		level   zapcore.Level
		message string
	}{
		{"trace", func() { logger.Trace(ctx, "trace message") }, TraceLevel, "trace message"},
		{"debug", func() { logger.Debug(ctx, "debug message") }, zapcore.DebugLevel, "debug message"},
		{"info", func() { logger.Info(ctx, "info message") }, zapcore.InfoLevel, "info message"},
		{"warn", func() { logger.Warn(ctx, "warn message") }, zapcore.WarnLevel, "warn message"},
		{"error", func() { logger.Error(ctx, "error message") }, zapcore.ErrorLevel, "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.logFunc()

			logs := observed.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, tt.message, logs[0].Message)
			assert.Equal(t, int64(42), logs[0].ContextMap()["run.id"])
		})
	}
}

func TestLogger_TraceSkippedWhenDisabled(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := NewFromZap(zap.New(core))

	logger.Trace(context.Background(), "hidden")

	assert.False(t, logger.Enabled(TraceLevel))
	assert.Equal(t, 0, observed.Len())
}

func TestLogger_WithAndNamed(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	parent := NewFromZap(zap.New(core))

	child := parent.Named("registry").With(zap.String("channel", "c1"))
	child.Info(context.Background(), "from child")
	parent.Info(context.Background(), "from parent")

	logs := observed.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "registry", logs[0].LoggerName)
	assert.Equal(t, "c1", logs[0].ContextMap()["channel"])
	assert.Empty(t, logs[1].LoggerName)
	assert.NotContains(t, logs[1].ContextMap(), "channel")
}

func TestNewFromZap_Nil(t *testing.T) {
	logger := NewFromZap(nil)
	require.NotNil(t, logger.Underlying())
	logger.Info(context.Background(), "dropped")
}
