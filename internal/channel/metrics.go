package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsEnqueued counts events accepted into a channel queue.
	EventsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runlogd",
			Subsystem: "channel",
			Name:      "events_enqueued_total",
			Help:      "Total number of events accepted into channel queues",
		},
	)

	// EventsRejected counts events refused by Enqueue.
	// Labels: reason (closed, full, canceled)
	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlogd",
			Subsystem: "channel",
			Name:      "events_rejected_total",
			Help:      "Total number of events rejected by channel queues",
		},
		[]string{"reason"},
	)

	// EventsPersisted counts records handed successfully to the sink.
	EventsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runlogd",
			Subsystem: "channel",
			Name:      "events_persisted_total",
			Help:      "Total number of records persisted",
		},
	)

	// EventsLost counts records in batches the sink failed to persist.
	EventsLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runlogd",
			Subsystem: "channel",
			Name:      "events_lost_total",
			Help:      "Total number of records lost to persistence failures",
		},
	)

	// Batches counts persist calls.
	// Labels: result (success, error)
	Batches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlogd",
			Subsystem: "channel",
			Name:      "batches_total",
			Help:      "Total number of batch persist operations",
		},
		[]string{"result"},
	)

	// PersistDuration tracks how long a batch persist takes.
	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "runlogd",
			Subsystem: "channel",
			Name:      "persist_duration_seconds",
			Help:      "Duration of batch persist operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// OpenChannels is the number of channels not yet drained.
	OpenChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runlogd",
			Subsystem: "channel",
			Name:      "open",
			Help:      "Number of channels that have not finished draining",
		},
	)
)

const (
	reasonClosed   = "closed"
	reasonFull     = "full"
	reasonCanceled = "canceled"

	resultSuccess = "success"
	resultError   = "error"
)
