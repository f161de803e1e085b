package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the prometheus collectors shared by the dashboard core
type Metrics struct {
	// Registry: connect/disconnect outcomes
	RegistryMutations *prometheus.CounterVec

	// Registry: number of connected platforms
	ConnectedPlatforms prometheus.Gauge

	// Stream: 0 idle, 1 connecting, 2 open, 3 closed
	StreamState prometheus.Gauge

	// Stream: reconnect attempts after a drop or failed dial
	StreamReconnects prometheus.Counter

	// Stream: decoded events by type
	StreamEvents *prometheus.CounterVec

	// Stream: frames dropped as malformed
	StreamDecodeErrors prometheus.Counter

	// Consumer: events dropped because the platform is not connected
	FilteredEvents *prometheus.CounterVec

	// Consumer: alerts held in the recent-alert buffer
	AlertBufferFill prometheus.Gauge

	// External AI / analytics calls
	ExternalCallDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. A nil reg gets a private
// registry that nothing scrapes, which keeps tests isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RegistryMutations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_registry_mutations_total",
			Help: "Platform connect/disconnect operations by outcome.",
		}, []string{"operation", "result"}),

		ConnectedPlatforms: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_connected_platforms",
			Help: "Number of platforms currently connected.",
		}),

		StreamState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_health_stream_state",
			Help: "Health stream state (0=idle, 1=connecting, 2=open, 3=closed).",
		}),

		StreamReconnects: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dashboard_health_stream_reconnects_total",
			Help: "Reconnect attempts made by the health stream client.",
		}),

		StreamEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_health_stream_events_total",
			Help: "Events delivered by the health stream client.",
		}, []string{"type"}),

		StreamDecodeErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dashboard_health_stream_decode_errors_total",
			Help: "Inbound frames dropped as malformed.",
		}),

		FilteredEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_health_filtered_events_total",
			Help: "Health events ignored because the platform is not connected.",
		}, []string{"type"}),

		AlertBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_alert_buffer_size",
			Help: "Alerts currently held in the recent-alert buffer.",
		}),

		ExternalCallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_external_call_duration_seconds",
			Help:    "Latency of AI optimization and analytics calls.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"service", "status"}),
	}
}
