package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gateway"

// Metrics holds the Prometheus collectors shared by the gateway services.
type Metrics struct {
	AuthRejections   *prometheus.CounterVec
	EmbedRequests    *prometheus.CounterVec
	EmbedIssuances   *prometheus.CounterVec
	EmbedRefreshes   *prometheus.CounterVec
	EmbedScheduled   prometheus.Gauge
	CompletionConfig *prometheus.CounterVec
	StreamRequests   *prometheus.CounterVec
	StreamBytes      prometheus.Counter
	OAuthCallbacks   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Bearer authentication rejections by reason.",
		}, []string{"reason"}),
		EmbedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_token_requests_total",
			Help:      "Embed credential lookups by cache status.",
		}, []string{"status"}),
		EmbedIssuances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_token_issuances_total",
			Help:      "Upstream embed credential issuances by outcome.",
		}, []string{"outcome"}),
		EmbedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_token_background_refreshes_total",
			Help:      "Scheduled background refreshes by outcome.",
		}, []string{"outcome"}),
		EmbedScheduled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "embed_token_pending_refreshes",
			Help:      "Number of pending refresh timers.",
		}),
		CompletionConfig: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_config_loads_total",
			Help:      "Completion configuration loads by source.",
		}, []string{"source"}),
		StreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_requests_total",
			Help:      "Streamed completion requests by outcome.",
		}, []string{"outcome"}),
		StreamBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_relayed_bytes_total",
			Help:      "Bytes relayed from the completion service to clients.",
		}),
		OAuthCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_callbacks_total",
			Help:      "OAuth callback outcomes.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AuthRejections,
			m.EmbedRequests,
			m.EmbedIssuances,
			m.EmbedRefreshes,
			m.EmbedScheduled,
			m.CompletionConfig,
			m.StreamRequests,
			m.StreamBytes,
			m.OAuthCallbacks,
		)
	}

	return m
}
