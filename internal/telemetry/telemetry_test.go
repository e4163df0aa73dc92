package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAdviceCountsByOutcome(t *testing.T) {
	m := NewMetrics()
	m.RecordAdvice("final", OutcomeNoCredential, time.Millisecond)
	m.RecordAdvice("final", OutcomeNoCredential, time.Millisecond)
	m.RecordAdvice("step", OutcomeOK, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.adviceTotal.WithLabelValues("final", OutcomeNoCredential)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adviceTotal.WithLabelValues("step", OutcomeOK)))
}

func TestSessionCounters(t *testing.T) {
	m := NewMetrics()
	m.IncSessionStarted()
	m.IncSessionCompleted()
	m.IncMessages("outbound", 3)
	m.IncMessages("outbound", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsFinished))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("outbound")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAdvice("final", OutcomeOK, time.Second)
		m.IncStageTransition("AWAITING_AGE")
		m.IncValidationError("age")
		m.IncSessionStarted()
		m.IncSessionCompleted()
		m.IncMessages("inbound", 1)
	})
}

func TestNewMetricsTwiceDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}
