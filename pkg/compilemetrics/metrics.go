// Package compilemetrics exposes Prometheus collectors for the compiler
// pipeline, grounded in the teacher's pkg/metrics request-metrics idiom
// but re-targeted at compile stages instead of HTTP requests (§12).
package compilemetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds configuration for the compiler metrics namespace.
type Config struct {
	Namespace       string
	Subsystem       string
	DurationBuckets []float64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:       "udonc",
		Subsystem:       "compile",
		DurationBuckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}
}

// Metrics holds all Prometheus metrics collectors for the compiler.
type Metrics struct {
	compilesTotal     *prometheus.CounterVec
	compileErrors     *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	instructionsTotal *prometheus.CounterVec
	passesApplied     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers the compiler's Prometheus metrics.
func New(config Config) *Metrics {
	if config.Namespace == "" {
		config = DefaultConfig()
	}
	if len(config.DurationBuckets) == 0 {
		config.DurationBuckets = DefaultConfig().DurationBuckets
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}

	m.compilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "requests_total",
			Help:      "Total number of compile requests",
		},
		[]string{"status"},
	)

	m.compileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "errors_total",
			Help:      "Total number of compile errors by kind",
		},
		[]string{"kind"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   config.DurationBuckets,
		},
		[]string{"stage"},
	)

	m.instructionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "instructions_emitted_total",
			Help:      "Total number of Udon instructions emitted",
		},
		[]string{"opcode"},
	)

	m.passesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "optimizer_passes_applied_total",
			Help:      "Total number of optimizer passes that made a change",
		},
		[]string{"pass", "level"},
	)

	registry.MustRegister(
		m.compilesTotal,
		m.compileErrors,
		m.stageDuration,
		m.instructionsTotal,
		m.passesApplied,
	)

	return m
}

// RecordCompile records the outcome of a single compile request.
func (m *Metrics) RecordCompile(status string) {
	m.compilesTotal.WithLabelValues(status).Inc()
}

// RecordError records a compile error by its taxonomy kind (§7).
func (m *Metrics) RecordError(kind string) {
	m.compileErrors.WithLabelValues(kind).Inc()
}

// ObserveStage records how long a pipeline stage took (lower, optimize,
// lower_to_udon, assemble).
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordInstruction increments the emitted-instruction counter for an opcode.
func (m *Metrics) RecordInstruction(opcode string, n int) {
	m.instructionsTotal.WithLabelValues(opcode).Add(float64(n))
}

// RecordPassApplied increments the counter for an optimizer pass that
// changed the program at the given optimization level.
func (m *Metrics) RecordPassApplied(pass, level string) {
	m.passesApplied.WithLabelValues(pass, level).Inc()
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Stage times fn and observes its duration under the given stage name,
// grounded in the teacher's RecordRequest measure-then-record pattern.
func (m *Metrics) Stage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.ObserveStage(stage, time.Since(start))
	return err
}
