package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xhs-agent/internal/models"
)

const namespace = "xhs_agent"

// Pipeline outcomes
const (
	OutcomeCollected     = "collected"
	OutcomeAnalyzed      = "analyzed"
	OutcomeGenerated     = "generated"
	OutcomeSent          = "sent"
	OutcomeStaged        = "staged"
	OutcomeSkippedByGate = "skipped_by_gate"
	OutcomeFailed        = "failed"
)

// Metrics exports agent counters to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	gateDecisions       *prometheus.CounterVec
	pipelineOutcomes    *prometheus.CounterVec
	extractionFallbacks *prometheus.CounterVec
	llmRetries          prometheus.Counter
	runDuration         prometheus.Histogram
	paused              prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
// A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Rate gate decisions by result.",
		}, []string{"result"}),
		pipelineOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_outcomes_total",
			Help:      "Topics and replies by pipeline outcome.",
		}, []string{"outcome"}),
		extractionFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_fallbacks_total",
			Help:      "Model responses that needed a fallback extraction.",
		}, []string{"kind"}),
		llmRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Retried language model requests.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of full workflow runs.",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while the rate gate is paused.",
		}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{
		m.gateDecisions, m.pipelineOutcomes, m.extractionFallbacks,
		m.llmRetries, m.runDuration, m.paused,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return nil, fmt.Errorf("metrics already registered: %w", err)
			}
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// GateDecision counts an allowed or denied gate check
func (m *Metrics) GateDecision(d models.GateDecision) {
	if m == nil {
		return
	}
	result := "allowed"
	if !d.Allowed {
		result = "denied"
	}
	m.gateDecisions.WithLabelValues(result).Inc()
}

// Outcome adds n to the counter of a pipeline outcome
func (m *Metrics) Outcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pipelineOutcomes.WithLabelValues(outcome).Add(float64(n))
}

// ExtractionFallback counts a degraded extraction of kind
func (m *Metrics) ExtractionFallback(kind string) {
	if m == nil {
		return
	}
	m.extractionFallbacks.WithLabelValues(kind).Inc()
}

// LLMRetry counts a retried model request
func (m *Metrics) LLMRetry(int, error) {
	if m == nil {
		return
	}
	m.llmRetries.Inc()
}

// RunFinished observes the duration of a workflow run
func (m *Metrics) RunFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

// SetPaused mirrors the gate pause state
func (m *Metrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

// ObserveEvent tracks pause and resume events, suitable for EventLog.Subscribe
func (m *Metrics) ObserveEvent(e models.SafetyEvent) {
	switch e.EventType {
	case models.EventSystemPaused:
		m.SetPaused(true)
	case models.EventSystemResumed:
		m.SetPaused(false)
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
