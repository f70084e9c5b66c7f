package appender

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventsFiltered counts events discarded by the severity threshold.
var EventsFiltered = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "runlogd",
	Subsystem: "appender",
	Name:      "events_filtered_total",
	Help:      "Events discarded because their severity was below the threshold",
})

// CoreWriteErrors counts zap entries the core adapter failed to submit.
var CoreWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "runlogd",
	Subsystem: "appender",
	Name:      "core_write_errors_total",
	Help:      "Log entries the zap core adapter could not submit",
})
