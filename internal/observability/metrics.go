package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry

	Queries         *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
	StorageErrors   *prometheus.CounterVec
	WindowTurns     prometheus.Histogram
	WSMessages      *prometheus.CounterVec
	ActiveWSConns   prometheus.Gauge
	ActiveSessions  prometheus.GaugeFunc
	SessionsDeleted prometheus.Counter
}

// NewMetrics registers instruments on a private registry so tests can build several.
// activeSessions may be nil.
func NewMetrics(namespace string, activeSessions func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{registry: reg}
	m.Queries = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_total",
		Help:      "Query cycles by outcome.",
	}, []string{"outcome"})
	m.UpstreamLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_latency_ms",
		Help:      "Language model call latency in milliseconds.",
		Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
	}, []string{"provider"})
	m.StorageErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_errors_total",
		Help:      "Turn log failures by operation.",
	}, []string{"op"})
	m.WindowTurns = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "window_turns",
		Help:      "Number of turns replayed per query.",
		Buckets:   []float64{0, 1, 2, 5, 10, 15, 20},
	})
	m.WSMessages = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_messages_total",
		Help:      "WebSocket messages by direction and type.",
	}, []string{"direction", "type"})
	m.ActiveWSConns = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_ws_connections",
		Help:      "Open query websocket connections.",
	})
	m.SessionsDeleted = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_deleted_total",
		Help:      "Sessions deleted on request.",
	})
	if activeSessions != nil {
		m.ActiveSessions = f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions with a query inside the inactivity window.",
		}, func() float64 { return float64(activeSessions()) })
	}
	return m
}

func (m *Metrics) ObserveUpstreamLatency(provider string, d time.Duration) {
	m.UpstreamLatency.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
