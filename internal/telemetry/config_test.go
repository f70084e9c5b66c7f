package telemetry

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, "runlogd", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.Sampling.Rate)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Metrics.ExportInterval.Duration())
	assert.Equal(t, 5*time.Second, cfg.Shutdown.Timeout.Duration())
}

func TestFromObservability(t *testing.T) {
	tests := []struct {
		name         string
		obs          config.ObservabilityConfig
		wantProtocol string
		wantInsecure bool
	}{
		{
			name:         "grpc host port",
			obs:          config.ObservabilityConfig{EnableTelemetry: true, Endpoint: "127.0.0.1:4317", ServiceName: "runlogd-ci"},
			wantProtocol: ProtocolGRPC,
			wantInsecure: true,
		},
		{
			name:         "https endpoint",
			obs:          config.ObservabilityConfig{EnableTelemetry: true, Endpoint: "https://otel.example.com:4318"},
			wantProtocol: ProtocolHTTP,
			wantInsecure: false,
		},
		{
			name:         "http endpoint",
			obs:          config.ObservabilityConfig{Endpoint: "http://localhost:4318"},
			wantProtocol: ProtocolHTTP,
			wantInsecure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromObservability(tt.obs, "1.2.3")
			assert.Equal(t, tt.obs.EnableTelemetry, cfg.Enabled)
			assert.Equal(t, tt.wantProtocol, cfg.Protocol)
			assert.Equal(t, tt.wantInsecure, cfg.Insecure)
			assert.Equal(t, "1.2.3", cfg.ServiceVersion)
			require.NoError(t, cfg.Validate())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	enabled := func(mutate func(*Config)) *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		mutate(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		config *Config
		errMsg string
	}{
		{name: "valid default config", config: NewDefaultConfig()},
		{name: "disabled config skips validation", config: &Config{Enabled: false}},
		{name: "valid enabled", config: enabled(func(*Config) {})},
		{name: "missing endpoint", config: enabled(func(c *Config) { c.Endpoint = "" }), errMsg: "endpoint is required"},
		{name: "missing service name", config: enabled(func(c *Config) { c.ServiceName = "" }), errMsg: "service_name is required"},
		{name: "unknown protocol", config: enabled(func(c *Config) { c.Protocol = "udp" }), errMsg: "protocol must be"},
		{name: "insecure remote", config: enabled(func(c *Config) { c.Endpoint = "otel.example.com:4317" }), errMsg: "insecure connections"},
		{
			name: "secure remote",
			config: enabled(func(c *Config) {
				c.Endpoint = "otel.example.com:4317"
				c.Insecure = false
			}),
		},
		{name: "insecure ipv6 loopback", config: enabled(func(c *Config) { c.Endpoint = "[::1]:4317" })},
		{name: "sampling rate too low", config: enabled(func(c *Config) { c.Sampling.Rate = -0.1 }), errMsg: "sampling.rate"},
		{name: "sampling rate too high", config: enabled(func(c *Config) { c.Sampling.Rate = 1.5 }), errMsg: "sampling.rate"},
		{name: "zero export interval", config: enabled(func(c *Config) { c.Metrics.ExportInterval = 0 }), errMsg: "export_interval"},
		{name: "zero shutdown timeout", config: enabled(func(c *Config) { c.Shutdown.Timeout = 0 }), errMsg: "shutdown.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
