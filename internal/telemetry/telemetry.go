// Package telemetry exposes Prometheus metrics for the intake flow and advice generation.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Advice outcomes recorded by RecordAdvice.
const (
	OutcomeOK           = "ok"
	OutcomeNoCredential = "no_credential"
	OutcomeCallFailed   = "call_failed"
	OutcomeEmpty        = "empty_response"
)

// Message directions recorded by IncMessages.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Metrics holds all Prometheus metrics for HealthCoach.
type Metrics struct {
	// Registry owns these metrics and backs the /metrics endpoint.
	Registry *prometheus.Registry

	adviceTotal      *prometheus.CounterVec
	adviceDuration   *prometheus.HistogramVec
	stageTransitions *prometheus.CounterVec
	validationErrors *prometheus.CounterVec
	sessionsStarted  prometheus.Counter
	sessionsFinished prometheus.Counter
	messagesTotal    *prometheus.CounterVec
}

// NewMetrics registers all metrics in a private registry so it can be called repeatedly in tests.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		adviceTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthcoach_advice_requests_total",
				Help: "Advice generation requests by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		adviceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healthcoach_advice_duration_seconds",
				Help:    "Latency of advice generation calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		stageTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthcoach_stage_transitions_total",
				Help: "Accepted intake answers by stage.",
			},
			[]string{"stage"},
		),
		validationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthcoach_validation_errors_total",
				Help: "Rejected intake answers by field.",
			},
			[]string{"field"},
		),
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "healthcoach_sessions_started_total",
			Help: "Intake sessions created.",
		}),
		sessionsFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "healthcoach_sessions_completed_total",
			Help: "Intake sessions that reached a final recommendation.",
		}),
		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthcoach_messages_total",
				Help: "Chat messages by direction.",
			},
			[]string{"direction"},
		),
	}
}

// RecordAdvice counts one advice call and observes its latency.
func (m *Metrics) RecordAdvice(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.adviceTotal.WithLabelValues(kind, outcome).Inc()
	m.adviceDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncStageTransition counts an accepted answer at stage.
func (m *Metrics) IncStageTransition(stage string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(stage).Inc()
}

// IncValidationError counts a rejected answer for field.
func (m *Metrics) IncValidationError(field string) {
	if m == nil {
		return
	}
	m.validationErrors.WithLabelValues(field).Inc()
}

// IncSessionStarted counts a new session.
func (m *Metrics) IncSessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

// IncSessionCompleted counts a finished intake.
func (m *Metrics) IncSessionCompleted() {
	if m == nil {
		return
	}
	m.sessionsFinished.Inc()
}

// IncMessages counts n messages in direction (DirectionInbound or DirectionOutbound).
func (m *Metrics) IncMessages(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesTotal.WithLabelValues(direction).Add(float64(n))
}
