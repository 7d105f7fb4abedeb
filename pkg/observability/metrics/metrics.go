// Package metrics 提供 OKR 服务的 Prometheus 监控指标。
package metrics

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "okr"

// Status label values.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusPanic       = "panic"
	StatusDropped     = "dropped"
	StatusUnsupported = "unsupported"
)

// Metrics OKR 服务监控指标
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 指标
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	// 对话指标
	ChatTurns    *prometheus.CounterVec
	ChatDuration *prometheus.HistogramVec
	ToolCalls    *prometheus.CounterVec

	// 索引指标
	ObjectiveEvents *prometheus.CounterVec
	RebuiltDocs     prometheus.Counter
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates metrics on a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		HTTPInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),

		ChatTurns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "chat",
				Name:      "turns_total",
				Help:      "Total number of chat turns.",
			},
			[]string{"mode", "status"},
		),
		ChatDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "chat",
				Name:      "turn_duration_seconds",
				Help:      "Chat turn duration in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		ToolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "chat",
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls requested by the model.",
			},
			[]string{"tool", "status"},
		),

		ObjectiveEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "indexer",
				Name:      "events_total",
				Help:      "Objective change events delivered to listeners.",
			},
			[]string{"kind", "status"},
		),
		RebuiltDocs: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "indexer",
				Name:      "rebuilt_documents_total",
				Help:      "Documents written by full index rebuilds.",
			},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
// Registering the same name twice keeps the first function.
func (m *Metrics) GaugeFunc(subsystem, name, help string, fn func() float64) error {
	err := m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
