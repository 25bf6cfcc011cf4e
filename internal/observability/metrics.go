package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the honeypot.
type Metrics struct {
	MessagesHandled *prometheus.CounterVec
	ScamDetections  prometheus.Counter
	FallbackReplies prometheus.Counter
	ParseOutcomes   *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	EntitiesFound   *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	ReplyLatency    prometheus.Histogram
}

// NewMetrics registers the instruments on reg. Pass nil to use the default
// registry; tests pass their own to stay isolated.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		MessagesHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Inbound scammer messages by handler outcome.",
		}, []string{"outcome"}),
		ScamDetections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scam_detections_total",
			Help:      "Messages classified as scam attempts.",
		}),
		FallbackReplies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_replies_total",
			Help:      "Replies served from the static fallback instead of the model.",
		}),
		ParseOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_outcomes_total",
			Help:      "Isolation parser outcomes by result.",
		}, []string{"result"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_deliveries_total",
			Help:      "Callback deliveries by terminal outcome.",
		}, []string{"outcome"}),
		EntitiesFound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_extracted_total",
			Help:      "Extracted entities by category.",
		}, []string{"category"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live engagement sessions.",
		}),
		ReplyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_ms",
			Help:      "Synchronous reply path latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
	}
}

// ObserveReplyLatency records one fast-path round trip
func (m *Metrics) ObserveReplyLatency(d time.Duration) {
	m.ReplyLatency.Observe(float64(d.Milliseconds()))
}

// MetricsHandler exposes the default registry over HTTP
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
