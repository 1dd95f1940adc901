package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "airvpn_bridge"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	lastSuccess     prometheus.Gauge
	observers       prometheus.Gauge
	publishTotal    *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
	streamClients   prometheus.Gauge
}

// New creates a Metrics with a fresh registry. Go runtime and process
// collectors are registered when withRuntime is true.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Completed refresh cycles by result.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Refresh cycle duration by result.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"result"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Registered snapshot observers.",
		}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publish_total",
			Help:      "Publish attempts per sink.",
		}, []string{"sink"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publish_errors_total",
			Help:      "Failed publish attempts per sink.",
		}, []string{"sink"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected websocket clients.",
		}),
	}

	m.registry.MustRegister(
		m.refreshTotal,
		m.refreshDuration,
		m.lastSuccess,
		m.observers,
		m.publishTotal,
		m.publishErrors,
		m.streamClients,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// ObserveRefresh records one completed refresh cycle.
func (m *Metrics) ObserveRefresh(result string, d time.Duration) {
	m.refreshTotal.WithLabelValues(result).Inc()
	m.refreshDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SetLastSuccess records the time of the latest successful refresh.
func (m *Metrics) SetLastSuccess(t time.Time) {
	m.lastSuccess.Set(float64(t.UnixNano()) / 1e9)
}

// SetObservers records the current snapshot observer count.
func (m *Metrics) SetObservers(n int) {
	m.observers.Set(float64(n))
}

// ObservePublish records one publish attempt to a sink.
func (m *Metrics) ObservePublish(sink string, err error) {
	m.publishTotal.WithLabelValues(sink).Inc()
	if err != nil {
		m.publishErrors.WithLabelValues(sink).Inc()
	}
}

// SetStreamClients records the connected websocket client count.
func (m *Metrics) SetStreamClients(n int) {
	m.streamClients.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
