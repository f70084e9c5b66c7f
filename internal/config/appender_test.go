package config

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestAppenderConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*AppenderConfig)
		wantField string
	}{
		{name: "defaults", mutate: func(*AppenderConfig) {}},
		{name: "zero capacity", mutate: func(c *AppenderConfig) { c.MaxNumberLogEvents = 0 }, wantField: "max_number_log_events"},
		{name: "negative capacity", mutate: func(c *AppenderConfig) { c.MaxNumberLogEvents = -5 }, wantField: "max_number_log_events"},
		{name: "batch size zero in batch mode", mutate: func(c *AppenderConfig) { c.BatchSize = 0 }, wantField: "batch_size"},
		{
			name: "batch size ignored outside batch mode",
			mutate: func(c *AppenderConfig) {
				c.Mode = "immediate"
				c.BatchSize = 0
				c.FlushInterval = 0
			},
		},
		{name: "zero flush interval", mutate: func(c *AppenderConfig) { c.FlushInterval = 0 }, wantField: "flush_interval"},
		{name: "trace threshold", mutate: func(c *AppenderConfig) { c.Threshold = zapcore.Level(-2) }},
		{name: "threshold below trace", mutate: func(c *AppenderConfig) { c.Threshold = zapcore.Level(-3) }, wantField: "threshold"},
		{name: "threshold above fatal", mutate: func(c *AppenderConfig) { c.Threshold = zapcore.FatalLevel + 1 }, wantField: "threshold"},
		{name: "unknown capacity policy", mutate: func(c *AppenderConfig) { c.CapacityPolicy = "" }, wantField: "capacity_policy"},
		{name: "drop policy", mutate: func(c *AppenderConfig) { c.CapacityPolicy = CapacityDrop }},
		{name: "zero lineage depth", mutate: func(c *AppenderConfig) { c.MaxLineageDepth = 0 }, wantField: "max_lineage_depth"},
		{name: "negative persist timeout", mutate: func(c *AppenderConfig) { c.PersistTimeout = Duration(-time.Second) }, wantField: "persist_timeout"},
		{name: "zero persist timeout", mutate: func(c *AppenderConfig) { c.PersistTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultAppenderConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.wantField)
			}
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Error("ValidationError should wrap ErrInvalidConfiguration")
			}
		})
	}
}

func TestAppenderConfig_BatchMode(t *testing.T) {
	cfg := NewDefaultAppenderConfig()
	if !cfg.BatchMode() {
		t.Error("default mode should be batch")
	}
	cfg.Mode = "BATCH"
	if cfg.BatchMode() {
		t.Error(`only the exact value "batch" enables batching`)
	}
}
