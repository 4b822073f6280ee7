// Package prometheus wraps metric registration behind a small collector
// interface so business packages never touch the prometheus registry
// directly.
package prometheus

import (
	stderrors "errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// MetricsCollector
// ─────────────────────────────────────────────────────────────────────────────

// MetricsCollector registers namespaced metric vectors and serves the
// exposition endpoint.
type MetricsCollector interface {
	RegisterCounter(subsystem, name, help string, labels ...string) *prometheus.CounterVec
	RegisterGauge(subsystem, name, help string, labels ...string) *prometheus.GaugeVec
	RegisterHistogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec
	Handler() http.Handler
}

// ─────────────────────────────────────────────────────────────────────────────
// Collector
// ─────────────────────────────────────────────────────────────────────────────

// Collector is the registry-backed MetricsCollector. Registering the same
// metric twice returns the existing vector, so construction order never
// matters.
type Collector struct {
	registry  *prometheus.Registry
	namespace string
	logger    logging.Logger
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector builds a collector with its own registry, preloaded with the
// standard Go and process collectors.
func NewCollector(namespace string, logger logging.Logger) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Collector{registry: registry, namespace: namespace, logger: logger}
}

// RegisterCounter registers a counter vector under the collector namespace.
func (c *Collector) RegisterCounter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	if existing, ok := c.register(vec, name); ok {
		return existing.(*prometheus.CounterVec)
	}
	return vec
}

// RegisterGauge registers a gauge vector under the collector namespace.
func (c *Collector) RegisterGauge(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	if existing, ok := c.register(vec, name); ok {
		return existing.(*prometheus.GaugeVec)
	}
	return vec
}

// RegisterHistogram registers a histogram vector under the collector
// namespace. Nil buckets use the prometheus defaults.
func (c *Collector) RegisterHistogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	if existing, ok := c.register(vec, name); ok {
		return existing.(*prometheus.HistogramVec)
	}
	return vec
}

// Handler serves the exposition endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// register adds vec to the registry. On AlreadyRegisteredError the existing
// collector is returned instead.
func (c *Collector) register(vec prometheus.Collector, name string) (prometheus.Collector, bool) {
	if err := c.registry.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			return are.ExistingCollector, true
		}
		c.logger.Error("metric registration failed",
			logging.String("metric", name), logging.Err(err))
	}
	return nil, false
}

// ─────────────────────────────────────────────────────────────────────────────
// NopCollector
// ─────────────────────────────────────────────────────────────────────────────

// NopCollector hands out unregistered vectors. Instrumented code runs
// unchanged; nothing is exported. Used when metrics are disabled and in
// tests.
type NopCollector struct{}

var _ MetricsCollector = (*NopCollector)(nil)

// NewNopCollector builds a collector whose metrics go nowhere.
func NewNopCollector() *NopCollector {
	return &NopCollector{}
}

func (*NopCollector) RegisterCounter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (*NopCollector) RegisterGauge(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (*NopCollector) RegisterHistogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func (*NopCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}
