package http

import (
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/channel"
	"github.com/fyrsmithlabs/runlogd/internal/telemetry"
)

// DefaultChannelAlias addresses the default channel in /api/v1/channels/:key.
const DefaultChannelAlias = "-"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Channels  int                     `json:"channels"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// SubmitRequest is the request body for POST /api/v1/events.
type SubmitRequest struct {
	ThreadKey  string            `json:"thread_key"`
	Kind       string            `json:"kind,omitempty"`     // default "message"
	Severity   string            `json:"severity,omitempty"` // default "info"
	Message    string            `json:"message"`
	Logger     string            `json:"logger,omitempty"`
	Name       string            `json:"name,omitempty"`
	EntityID   int64             `json:"entity_id,omitempty"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SubmitResponse is the response body for POST /api/v1/events.
type SubmitResponse struct {
	ID string `json:"id"`
}

// LineageRequest is the request body for POST /api/v1/lineage.
type LineageRequest struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
}

// LineageResponse reports whether the lineage entry was new.
type LineageResponse struct {
	Added bool `json:"added"`
}

// ChannelsResponse is the response body for GET /api/v1/channels.
type ChannelsResponse struct {
	Default  string             `json:"default,omitempty"`
	Channels []channel.Snapshot `json:"channels"`
}

// TimeOffsetRequest carries the producer clock reading.
type TimeOffsetRequest struct {
	Timestamp time.Time `json:"timestamp"`
}

// TimeOffsetResponse is the offset now applied to the channel's records.
type TimeOffsetResponse struct {
	OffsetMillis int64 `json:"offset_ms"`
}

// ShutdownResponse is the response body for POST /api/v1/shutdown.
type ShutdownResponse struct {
	Destroyed    int    `json:"destroyed"`
	WaitForDrain bool   `json:"wait_for_drain"`
	Error        string `json:"error,omitempty"`
}
