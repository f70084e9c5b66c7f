package logging

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampledLogger(level zapcore.Level, cfg SamplingConfig) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)
	return NewFromZap(zap.New(newSampledCore(core, cfg))), observed
}

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}

func TestNewSampledCore_ErrorsNeverSampled(t *testing.T) {
	logger, observed := sampledLogger(zapcore.InfoLevel, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels:  DefaultLevelSamplingConfig(),
	})

	for i := 0; i < 300; i++ {
		logger.Error(context.Background(), "persist failed")
	}

	assert.Equal(t, 300, observed.FilterMessage("persist failed").Len())
}

func TestNewSampledCore_PerLevelRates(t *testing.T) {
	logger, observed := sampledLogger(TraceLevel, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.DebugLevel: {Initial: 2, Thereafter: 0},
			zapcore.InfoLevel:  {Initial: 5, Thereafter: 0},
		},
	})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		logger.Debug(ctx, "debug flood")
		logger.Info(ctx, "info flood")
		logger.Warn(ctx, "warn unsampled")
	}

	assert.Equal(t, 2, observed.FilterMessage("debug flood").Len())
	assert.Equal(t, 5, observed.FilterMessage("info flood").Len())
	// Levels without a rate are passed through.
	assert.Equal(t, 20, observed.FilterMessage("warn unsampled").Len())
}

func TestNewSampledCore_Thereafter(t *testing.T) {
	logger, observed := sampledLogger(zapcore.InfoLevel, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 2, Thereafter: 5},
		},
	})

	for i := 0; i < 12; i++ {
		logger.Info(context.Background(), "drop warning")
	}

	// 1, 2, then 7 and 12.
	assert.Equal(t, 4, observed.FilterMessage("drop warning").Len())
}

func TestLevelFilterCore_With(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	filtered := &levelFilterCore{Core: core, accept: func(l zapcore.Level) bool { return l >= zapcore.WarnLevel }}

	child := zap.New(filtered.With([]zapcore.Field{zap.String("channel", "c1")}))
	child.Info("filtered")
	child.Warn("kept")

	logs := observed.All()
	assert.Len(t, logs, 1)
	assert.Equal(t, "c1", logs[0].ContextMap()["channel"])
}
