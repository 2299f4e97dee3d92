// Package metrics exports orchestrator instrumentation to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-attend/pkg/assistant"
)

// Metrics holds the Prometheus collectors. It implements assistant.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	State          *prometheus.GaugeVec
	Transitions    *prometheus.CounterVec
	TurnsTotal     *prometheus.CounterVec
	TurnDuration   *prometheus.HistogramVec
	StageDuration  *prometheus.HistogramVec
	FailuresTotal  *prometheus.CounterVec
	ListenTimeouts prometheus.Counter
}

var allStates = []assistant.State{
	assistant.StateIdle,
	assistant.StateDetecting,
	assistant.StateListening,
	assistant.StateProcessing,
	assistant.StateSpeaking,
	assistant.StateError,
}

// New creates a Metrics with all collectors registered on a private
// registry. Go runtime and process collectors are included.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "attend"
	}

	registry := prometheus.NewRegistry()

	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current assistant state, 0 otherwise",
		},
		[]string{"state"},
	)

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of state transitions",
		},
		[]string{"from", "to"},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Conversation turn duration in seconds",
			Buckets:   []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of transcribe, converse and speak stages in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage", "status"}, // status: success, error
	)

	failuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total number of failures raised by kind",
		},
		[]string{"kind"},
	)

	listenTimeouts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listen_timeouts_total",
			Help:      "Total number of listening windows that expired without speech",
		},
	)

	registry.MustRegister(
		state,
		transitions,
		turnsTotal,
		turnDuration,
		stageDuration,
		failuresTotal,
		listenTimeouts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, s := range allStates {
		state.WithLabelValues(s.String()).Set(0)
	}
	state.WithLabelValues(assistant.StateIdle.String()).Set(1)

	return &Metrics{
		registry:       registry,
		State:          state,
		Transitions:    transitions,
		TurnsTotal:     turnsTotal,
		TurnDuration:   turnDuration,
		StageDuration:  stageDuration,
		FailuresTotal:  failuresTotal,
		ListenTimeouts: listenTimeouts,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StateChanged records a transition.
func (m *Metrics) StateChanged(from, to assistant.State) {
	m.State.WithLabelValues(from.String()).Set(0)
	m.State.WithLabelValues(to.String()).Set(1)
	m.Transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// TurnFinished records a completed, interrupted, failed or empty turn.
func (m *Metrics) TurnFinished(outcome assistant.TurnOutcome, elapsed time.Duration) {
	m.TurnsTotal.WithLabelValues(string(outcome)).Inc()
	m.TurnDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// StageCompleted records one stage call.
func (m *Metrics) StageCompleted(stage string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StageDuration.WithLabelValues(stage, status).Observe(elapsed.Seconds())
}

// FailureRaised records a user-visible failure.
func (m *Metrics) FailureRaised(kind assistant.FailureKind) {
	m.FailuresTotal.WithLabelValues(kind.String()).Inc()
}

// ListenTimedOut records an expired listening window.
func (m *Metrics) ListenTimedOut() {
	m.ListenTimeouts.Inc()
}

var _ assistant.Metrics = (*Metrics)(nil)
