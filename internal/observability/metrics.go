package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	ChatTurns         *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	AnalysisSeverity  *prometheus.CounterVec
	TranscriptEntries prometheus.Gauge
	CompletionLatency prometheus.Histogram
	FirstDeltaLatency prometheus.Histogram
	AnalysisLatency   prometheus.Histogram
	ActiveChatSockets prometheus.Gauge

	registry prometheus.Gatherer
	stages   *stageWindow
}

// NewMetrics registers instruments with the default Prometheus registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry registers instruments with reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not panic.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		ChatTurns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by kind (completion, command, apology).",
		}, []string{"kind"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Completion provider errors by provider and class.",
		}, []string{"provider", "class"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		AnalysisSeverity: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_severity_total",
			Help:      "Completed image analyses by severity label.",
		}, []string{"severity"}),
		TranscriptEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcript_entries",
			Help:      "Number of entries in the shared conversation transcript.",
		}),
		CompletionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Latency of a full completion call in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		FirstDeltaLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_delta_latency_ms",
			Help:      "Latency to the first streamed assistant text delta in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 4000},
		}),
		AnalysisLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_latency_ms",
			Help:      "Latency of image pressure analysis in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 200, 400, 800, 1600},
		}),
		ActiveChatSockets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_chat_sockets",
			Help:      "Number of open chat WebSocket connections.",
		}),
		registry: gatherer,
		stages:   newStageWindow(256),
	}
}

func (m *Metrics) ObserveCompletionLatency(d time.Duration) {
	ms := float64(d.Milliseconds())
	m.CompletionLatency.Observe(ms)
	m.stages.Observe(StageCompletion, ms)
}

func (m *Metrics) ObserveFirstDeltaLatency(d time.Duration) {
	ms := float64(d.Milliseconds())
	m.FirstDeltaLatency.Observe(ms)
	m.stages.Observe(StageFirstDelta, ms)
}

func (m *Metrics) ObserveAnalysis(severity string, d time.Duration) {
	ms := float64(d.Milliseconds())
	m.AnalysisLatency.Observe(ms)
	m.stages.Observe(StageAnalysisTotal, ms)
	if severity != "" {
		m.AnalysisSeverity.WithLabelValues(severity).Inc()
	}
}

// ObserveStage records a latency sample for the rolling perf window only.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveIndicator(name string) {
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	return m.stages.Snapshot()
}

// Handler serves the registry the metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return MetricsHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
