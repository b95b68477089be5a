package utils

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// Calendar latency buckets in milliseconds.
	calendarBuckets = []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

	MessagesTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulebot_messages_total",
			Help: "Inbound messages by the dialog state they arrived in",
		},
		[]string{"state"},
	)

	TransitionsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulebot_transitions_total",
			Help: "Dialog state transitions",
		},
		[]string{"from", "to"},
	)

	CalendarCallsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulebot_calendar_calls_total",
			Help: "Calendar gateway calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	CalendarLatency = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schedulebot_calendar_latency_ms",
			Help:    "Calendar gateway latency in milliseconds",
			Buckets: calendarBuckets,
		},
		[]string{"op"},
	)

	BookingsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulebot_bookings_total",
			Help: "Booking submissions by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// MetricsHandler serves the private registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
