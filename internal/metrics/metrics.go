// Package metrics exposes Prometheus metrics for channel levels, Hue output and the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dokzlo13/dimplan/internal/plan"
)

const namespace = "dimplan"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ChannelLevel  *prometheus.GaugeVec
	ChannelPinned *prometheus.GaugeVec
	Evaluations   prometheus.Counter
	HueUpdates    *prometheus.CounterVec

	APIRequestsTotal     *prometheus.CounterVec
	APIRequestDuration   *prometheus.HistogramVec
	APIActiveConnections prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChannelLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_level_percent",
			Help:      "Last evaluated level per channel.",
		}, []string{"channel"}),
		ChannelPinned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_pinned",
			Help:      "1 when the channel is pinned to a constant value.",
		}, []string{"channel"}),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Number of plan evaluations.",
		}),
		HueUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hue_updates_total",
			Help:      "State updates sent to the Hue bridge.",
		}, []string{"kind", "result"}),
		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "endpoint", "status"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint", "status"}),
		APIActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_active_connections",
			Help:      "HTTP requests in flight.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ChannelLevel,
		m.ChannelPinned,
		m.Evaluations,
		m.HueUpdates,
		m.APIRequestsTotal,
		m.APIRequestDuration,
		m.APIActiveConnections,
	)
	return m
}

// Handler exposes the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLevels records one evaluation.
// Channels without a value or no longer in the plan drop out of the level gauge.
func (m *Metrics) ObserveLevels(levels map[string]plan.Level) {
	m.Evaluations.Inc()
	m.ChannelLevel.Reset()
	m.ChannelPinned.Reset()

	for id, level := range levels {
		if level.OK {
			m.ChannelLevel.WithLabelValues(id).Set(level.Value)
		}
		pinned := 0.0
		if level.Pinned {
			pinned = 1
		}
		m.ChannelPinned.WithLabelValues(id).Set(pinned)
	}
}

// ObserveHueUpdate counts one bridge call; kind is "light" or "group".
func (m *Metrics) ObserveHueUpdate(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.HueUpdates.WithLabelValues(kind, result).Inc()
}
