package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared across instruments.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeConflict = "conflict"
	OutcomeUnknown  = "unknown_transaction"
	OutcomeError    = "error"
)

// Metrics captures reconciliation-engine health signals.
type Metrics struct {
	webhookEvents  *prometheus.CounterVec
	applyStatus    *prometheus.CounterVec
	gatewayCalls   *prometheus.HistogramVec
	gatewayErrors  *prometheus.CounterVec
	sweepRuns      *prometheus.CounterVec
	sweepDuration  *prometheus.HistogramVec
	sweepProcessed *prometheus.CounterVec
	sweepErrors    *prometheus.CounterVec
	effectFailures *prometheus.CounterVec
	notifications  *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		metrics = New(prometheus.DefaultRegisterer)
	})
	return metrics
}

// ResetForTest resets the singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sokoline",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Inbound webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		applyStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sokoline",
			Subsystem: "reconcile",
			Name:      "apply_status_total",
			Help:      "Apply-transaction-status invocations by source and outcome.",
		}, []string{"source", "outcome"}),
		gatewayCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sokoline",
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Gateway round-trip duration by provider and operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sokoline",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Gateway call failures by provider, operation and class.",
		}, []string{"provider", "operation", "class"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sokoline",
			Subsystem: "reconcile",
			Name:      "sweep_runs_total",
			Help:      "Reconciliation sweeps by job.",
		}, []string{"job"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sokoline",
			Subsystem: "reconcile",
			Name:      "sweep_duration_seconds",
			Help:      "Reconciliation sweep duration by job.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"job"}),
		sweepProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sokoline",
			Subsystem: "reconcile",
			Name:      "sweep_items_total",
			Help:      "Items handled per sweep job and result.",
		}, []string{"job", "result"}),
		sweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sokoline",
			Subsystem: "reconcile",
			Name:      "sweep_errors_total",
			Help:      "Sweep-level failures by job.",
		}, []string{"job"}),
		effectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sokoline",
			Subsystem: "effects",
			Name:      "failures_total",
			Help:      "Downstream effect sub-step failures.",
		}, []string{"step"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sokoline",
			Subsystem: "notification",
			Name:      "events_total",
			Help:      "Notification dispatches by event type and outcome.",
		}, []string{"event", "outcome"}),
	}

	registerer.MustRegister(
		m.webhookEvents,
		m.applyStatus,
		m.gatewayCalls,
		m.gatewayErrors,
		m.sweepRuns,
		m.sweepDuration,
		m.sweepProcessed,
		m.sweepErrors,
		m.effectFailures,
		m.notifications,
	)

	return m
}

func (m *Metrics) IncWebhookEvent(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(label(provider), label(outcome)).Inc()
}

func (m *Metrics) IncApplyStatus(source, outcome string) {
	if m == nil {
		return
	}
	m.applyStatus.WithLabelValues(label(source), label(outcome)).Inc()
}

func (m *Metrics) ObserveGatewayCall(provider, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(label(provider), label(operation)).Observe(d.Seconds())
}

func (m *Metrics) IncGatewayError(provider, operation, class string) {
	if m == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(label(provider), label(operation), label(class)).Inc()
}

func (m *Metrics) IncSweepRun(job string) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(label(job)).Inc()
}

func (m *Metrics) ObserveSweepDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(label(job)).Observe(d.Seconds())
}

func (m *Metrics) AddSweepItems(job, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepProcessed.WithLabelValues(label(job), label(result)).Add(float64(n))
}

func (m *Metrics) IncSweepError(job string) {
	if m == nil {
		return
	}
	m.sweepErrors.WithLabelValues(label(job)).Inc()
}

func (m *Metrics) IncEffectFailure(step string) {
	if m == nil {
		return
	}
	m.effectFailures.WithLabelValues(label(step)).Inc()
}

func (m *Metrics) IncNotification(event, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(label(event), label(outcome)).Inc()
}

func label(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
