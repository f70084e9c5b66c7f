package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// ModeBatch is the only Mode value that enables batched persistence.
const ModeBatch = "batch"

// CapacityPolicy decides what Enqueue does when a channel queue is full.
type CapacityPolicy string

const (
	// CapacityBlock makes the producer wait for space (default).
	CapacityBlock CapacityPolicy = "block"
	// CapacityDrop rejects the event immediately and counts it.
	CapacityDrop CapacityPolicy = "drop"
)

// ErrInvalidConfiguration is wrapped by every appender validation failure.
var ErrInvalidConfiguration = errors.New("invalid appender configuration")

// ValidationError identifies the offending appender field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfiguration, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// AppenderConfig holds the settings every channel is created with.
//
// A channel copies the value at creation time; replacing the configuration on a
// live registry only affects channels created afterwards.
type AppenderConfig struct {
	MaxNumberLogEvents  int            `koanf:"max_number_log_events"`
	Mode                string         `koanf:"mode"`
	BatchSize           int            `koanf:"batch_size"`
	FlushInterval       Duration       `koanf:"flush_interval"`
	Threshold           zapcore.Level  `koanf:"threshold"`
	Parallel            bool           `koanf:"parallel"`
	AllowChannelSharing bool           `koanf:"allow_channel_sharing"`
	CapacityPolicy      CapacityPolicy `koanf:"capacity_policy"`
	MaxLineageDepth     int            `koanf:"max_lineage_depth"`
	PersistTimeout      Duration       `koanf:"persist_timeout"`
	EnableCheckpoints   bool           `koanf:"enable_checkpoints"`
}

// NewDefaultAppenderConfig returns the appender defaults.
func NewDefaultAppenderConfig() AppenderConfig {
	return AppenderConfig{
		MaxNumberLogEvents:  10000,
		Mode:                ModeBatch,
		BatchSize:           100,
		FlushInterval:       Duration(2 * time.Second),
		Threshold:           zapcore.DebugLevel,
		Parallel:            false,
		AllowChannelSharing: true,
		CapacityPolicy:      CapacityBlock,
		MaxLineageDepth:     64,
		PersistTimeout:      Duration(30 * time.Second),
		EnableCheckpoints:   true,
	}
}

// BatchMode reports whether events are accumulated before persisting.
func (c AppenderConfig) BatchMode() bool {
	return c.Mode == ModeBatch
}

// Validate returns a *ValidationError for the first invalid field.
func (c AppenderConfig) Validate() error {
	if c.MaxNumberLogEvents <= 0 {
		return &ValidationError{Field: "max_number_log_events", Reason: fmt.Sprintf("must be > 0, got %d", c.MaxNumberLogEvents)}
	}
	if c.BatchMode() {
		if c.BatchSize <= 0 {
			return &ValidationError{Field: "batch_size", Reason: fmt.Sprintf("must be > 0 in batch mode, got %d", c.BatchSize)}
		}
		if c.FlushInterval.Duration() <= 0 {
			return &ValidationError{Field: "flush_interval", Reason: "must be positive in batch mode"}
		}
	}
	// -2 is the custom trace level.
	if c.Threshold < zapcore.DebugLevel-1 || c.Threshold > zapcore.FatalLevel {
		return &ValidationError{Field: "threshold", Reason: fmt.Sprintf("unsupported level %d", c.Threshold)}
	}
	switch c.CapacityPolicy {
	case CapacityBlock, CapacityDrop:
	default:
		return &ValidationError{Field: "capacity_policy", Reason: fmt.Sprintf("must be %q or %q, got %q", CapacityBlock, CapacityDrop, c.CapacityPolicy)}
	}
	if c.MaxLineageDepth <= 0 {
		return &ValidationError{Field: "max_lineage_depth", Reason: fmt.Sprintf("must be > 0, got %d", c.MaxLineageDepth)}
	}
	if c.PersistTimeout.Duration() < 0 {
		return &ValidationError{Field: "persist_timeout", Reason: "cannot be negative"}
	}
	return nil
}
