package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Output.Stdout)
	assert.False(t, cfg.Output.OTEL)
	assert.True(t, cfg.Sampling.Enabled)
	assert.Equal(t, time.Second, cfg.Sampling.Tick.Duration())
	assert.True(t, cfg.Caller.Enabled)
	assert.Equal(t, 1, cfg.Caller.Skip)
	assert.Equal(t, zapcore.ErrorLevel, cfg.Stacktrace.Level)
	assert.Equal(t, "runlogd", cfg.Fields["service"])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "invalid format", mutate: func(c *Config) { c.Format = "xml" }, errMsg: "format must be 'json' or 'console'"},
		{
			name: "no output enabled",
			mutate: func(c *Config) {
				c.Output.Stdout = false
				c.Output.OTEL = false
			},
			errMsg: "at least one output",
		},
		{name: "zero sampling tick", mutate: func(c *Config) { c.Sampling.Tick = 0 }, errMsg: "sampling tick"},
		{
			name: "zero tick ok when sampling disabled",
			mutate: func(c *Config) {
				c.Sampling.Enabled = false
				c.Sampling.Tick = 0
			},
		},
		{name: "negative caller skip", mutate: func(c *Config) { c.Caller.Skip = -1 }, errMsg: "caller skip"},
		{name: "empty field key", mutate: func(c *Config) { c.Fields[""] = "x" }, errMsg: "field key cannot be empty"},
		{name: "empty field value", mutate: func(c *Config) { c.Fields["env"] = "" }, errMsg: "has empty value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewConfigFromObservability(t *testing.T) {
	obs := config.ObservabilityConfig{
		EnableTelemetry: true,
		ServiceName:     "runlogd-ci",
		LogLevel:        "trace",
		LogFormat:       "console",
	}

	cfg, err := NewConfigFromObservability(obs)
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Output.OTEL)
	assert.Equal(t, "runlogd-ci", cfg.Fields["service"])
}

func TestNewConfigFromObservability_Errors(t *testing.T) {
	_, err := NewConfigFromObservability(config.ObservabilityConfig{LogLevel: "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, err = NewConfigFromObservability(config.ObservabilityConfig{LogFormat: "xml"})
	require.Error(t, err)
}
