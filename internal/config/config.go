// Package config provides configuration loading for runlogd.
//
// Configuration is loaded from environment variables with sensible defaults,
// optionally layered on top of a YAML or TOML file (see LoadWithFile).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Sink kinds understood by the sink factory.
const (
	SinkLog      = "log"
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
	SinkNATS     = "nats"
	SinkRedis    = "redis"
)

// envPrefix is prepended to every environment variable read by Load and LoadWithFile.
const envPrefix = "RUNLOGD_"

// Config holds the complete runlogd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Appender      AppenderConfig      `koanf:"appender"`
	Sink          SinkConfig          `koanf:"sink"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP control surface configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SinkConfig selects and configures the persistence collaborator.
type SinkConfig struct {
	Kind     string `koanf:"kind"`
	DSN      Secret `koanf:"dsn"`      // sqlite / postgres data source
	URL      string `koanf:"url"`      // nats / redis address
	Password Secret `koanf:"password"` // redis only
	Prefix   string `koanf:"prefix"`   // nats subject / redis stream prefix
	Table    string `koanf:"table"`    // sql table name
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: 30 * time.Second,
		},
		Appender: NewDefaultAppenderConfig(),
		Sink: SinkConfig{
			Kind:   SinkLog,
			Prefix: "runlog",
			Table:  "run_log_events",
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			ServiceName:     "runlogd",
			Endpoint:        "localhost:4317",
			LogLevel:        "info",
			LogFormat:       "json",
		},
	}
}

// Load loads configuration from environment variables with defaults.
//
// Environment variables:
//   - RUNLOGD_SERVER_HTTP_PORT: HTTP control port (default: 9191)
//   - RUNLOGD_SERVER_SHUTDOWN_TIMEOUT: drain budget on shutdown (default: 30s)
//   - RUNLOGD_APPENDER_MAX_NUMBER_LOG_EVENTS: per-channel queue capacity (default: 10000)
//   - RUNLOGD_APPENDER_MODE: "batch" enables batching (default: batch)
//   - RUNLOGD_APPENDER_PARALLEL: parallel test execution (default: false)
//   - RUNLOGD_APPENDER_CAPACITY_POLICY: block or drop (default: block)
//   - RUNLOGD_SINK_KIND: log, sqlite, postgres, nats or redis (default: log)
//   - RUNLOGD_SINK_DSN / RUNLOGD_SINK_URL: sink address
//   - RUNLOGD_OBSERVABILITY_ENABLE_TELEMETRY: enable OpenTelemetry (default: false)
func Load() *Config {
	cfg := Default()

	cfg.Server.Host = getEnvString("SERVER_HTTP_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_HTTP_PORT", cfg.Server.Port)
	cfg.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	a := &cfg.Appender
	a.MaxNumberLogEvents = getEnvInt("APPENDER_MAX_NUMBER_LOG_EVENTS", a.MaxNumberLogEvents)
	a.Mode = getEnvString("APPENDER_MODE", a.Mode)
	a.BatchSize = getEnvInt("APPENDER_BATCH_SIZE", a.BatchSize)
	a.FlushInterval = Duration(getEnvDuration("APPENDER_FLUSH_INTERVAL", a.FlushInterval.Duration()))
	a.Parallel = getEnvBool("APPENDER_PARALLEL", a.Parallel)
	a.AllowChannelSharing = getEnvBool("APPENDER_ALLOW_CHANNEL_SHARING", a.AllowChannelSharing)
	a.CapacityPolicy = CapacityPolicy(getEnvString("APPENDER_CAPACITY_POLICY", string(a.CapacityPolicy)))
	a.MaxLineageDepth = getEnvInt("APPENDER_MAX_LINEAGE_DEPTH", a.MaxLineageDepth)
	a.PersistTimeout = Duration(getEnvDuration("APPENDER_PERSIST_TIMEOUT", a.PersistTimeout.Duration()))
	a.EnableCheckpoints = getEnvBool("APPENDER_ENABLE_CHECKPOINTS", a.EnableCheckpoints)
	if v := os.Getenv(envPrefix + "APPENDER_THRESHOLD"); v != "" {
		_ = a.Threshold.UnmarshalText([]byte(v)) // unknown levels keep the default
	}

	cfg.Sink.Kind = getEnvString("SINK_KIND", cfg.Sink.Kind)
	cfg.Sink.DSN = Secret(getEnvString("SINK_DSN", cfg.Sink.DSN.Value()))
	cfg.Sink.URL = getEnvString("SINK_URL", cfg.Sink.URL)
	cfg.Sink.Password = Secret(getEnvString("SINK_PASSWORD", cfg.Sink.Password.Value()))
	cfg.Sink.Prefix = getEnvString("SINK_PREFIX", cfg.Sink.Prefix)
	cfg.Sink.Table = getEnvString("SINK_TABLE", cfg.Sink.Table)

	cfg.Observability.EnableTelemetry = getEnvBool("OBSERVABILITY_ENABLE_TELEMETRY", cfg.Observability.EnableTelemetry)
	cfg.Observability.ServiceName = getEnvString("OBSERVABILITY_SERVICE_NAME", cfg.Observability.ServiceName)
	cfg.Observability.Endpoint = getEnvString("OBSERVABILITY_ENDPOINT", cfg.Observability.Endpoint)
	cfg.Observability.LogLevel = getEnvString("OBSERVABILITY_LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = getEnvString("OBSERVABILITY_LOG_FORMAT", cfg.Observability.LogFormat)

	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - The appender configuration is invalid
//   - The sink kind is unknown or misses its address
//   - Service name is empty (when telemetry is enabled)
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if err := c.Appender.Validate(); err != nil {
		return err
	}

	if err := c.Sink.Validate(); err != nil {
		return err
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// Validate checks that the sink kind is known and has the address it needs.
func (s *SinkConfig) Validate() error {
	switch s.Kind {
	case SinkLog:
		return nil
	case SinkSQLite, SinkPostgres:
		if !s.DSN.IsSet() {
			return fmt.Errorf("sink %q requires dsn", s.Kind)
		}
		if s.Table == "" {
			return fmt.Errorf("sink %q requires table", s.Kind)
		}
	case SinkNATS, SinkRedis:
		if s.URL == "" {
			return fmt.Errorf("sink %q requires url", s.Kind)
		}
	default:
		return fmt.Errorf("unknown sink kind %q", s.Kind)
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
