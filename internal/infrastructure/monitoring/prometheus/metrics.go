package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Histogram buckets tuned per concern: pipeline stages run seconds to
// minutes, LLM calls sub-second to tens of seconds, repository queries
// milliseconds with a 500ms budget.
var (
	stageBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	llmBuckets   = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	repoBuckets  = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)

// ─────────────────────────────────────────────────────────────────────────────
// AppMetrics
// ─────────────────────────────────────────────────────────────────────────────

// AppMetrics aggregates every metric the platform emits. All methods are
// nil-safe so binaries without metrics pass a nil *AppMetrics and wiring
// stays unconditional.
type AppMetrics struct {
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageItems    *prometheus.CounterVec

	llmCalls    *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec

	repoDuration *prometheus.HistogramVec

	rateLimitRejections *prometheus.CounterVec
}

// NewAppMetrics registers the platform metric set on the given collector.
func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		runsTotal: c.RegisterCounter("pipeline", "runs_total",
			"Completed pipeline runs by source and outcome.", "source", "outcome"),
		stageDuration: c.RegisterHistogram("pipeline", "stage_duration_seconds",
			"Wall time per pipeline stage.", stageBuckets, "source", "stage"),
		stageItems: c.RegisterCounter("pipeline", "stage_items_total",
			"Items leaving each pipeline stage.", "source", "stage"),

		llmCalls: c.RegisterCounter("llm", "calls_total",
			"LLM generate calls by analyzer and status.", "analyzer", "status"),
		llmDuration: c.RegisterHistogram("llm", "call_duration_seconds",
			"LLM generate call latency.", llmBuckets, "analyzer"),

		repoDuration: c.RegisterHistogram("repository", "query_duration_seconds",
			"Pool repository operation latency.", repoBuckets, "operation"),

		rateLimitRejections: c.RegisterCounter("ratelimit", "rejections_total",
			"Rate-limit saturations that exceeded patience.", "source"),
	}
}

// RunCompleted counts one finished pipeline run.
func (m *AppMetrics) RunCompleted(source, outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(source, outcome).Inc()
}

// StageTimer returns a stop function observing the stage duration.
func (m *AppMetrics) StageTimer(source, stage string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.stageDuration.WithLabelValues(source, stage).Observe(time.Since(start).Seconds())
	}
}

// AddStageItems counts n items leaving a stage.
func (m *AppMetrics) AddStageItems(source, stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stageItems.WithLabelValues(source, stage).Add(float64(n))
}

// ObserveLLMCall records one generate call.
func (m *AppMetrics) ObserveLLMCall(analyzer, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(analyzer, status).Inc()
	m.llmDuration.WithLabelValues(analyzer).Observe(elapsed.Seconds())
}

// RepoTimer returns a stop function observing one repository operation.
func (m *AppMetrics) RepoTimer(operation string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.repoDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RateLimitRejected counts one saturation that exceeded patience.
func (m *AppMetrics) RateLimitRejected(source string) {
	if m == nil {
		return
	}
	m.rateLimitRejections.WithLabelValues(source).Inc()
}
