package metrics

import "github.com/prometheus/client_golang/prometheus"

// SafetyMetrics exposes counters/histograms for assessment and escalation flows.
// Labels carry levels and recipient kinds only, never user identifiers.
type SafetyMetrics struct {
	assessmentsTotal    *prometheus.CounterVec
	assessmentLatency   prometheus.Histogram
	decisionsTotal      *prometheus.CounterVec
	escalationsTotal    *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	actionsTotal        *prometheus.CounterVec
	sweepCohort         prometheus.Gauge
	sweepFailuresTotal  prometheus.Counter
	sweepEscalatedTotal prometheus.Counter
}

func NewSafetyMetrics(reg prometheus.Registerer) *SafetyMetrics {
	m := &SafetyMetrics{
		assessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbeing",
			Subsystem: "risk",
			Name:      "assessments_total",
			Help:      "Total crisis risk assessments by resulting level",
		}, []string{"risk_level"}),
		assessmentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wellbeing",
			Subsystem: "risk",
			Name:      "assessment_latency_seconds",
			Help:      "Latency of a full risk assessment including store reads",
			Buckets:   prometheus.DefBuckets,
		}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbeing",
			Subsystem: "escalation",
			Name:      "decisions_total",
			Help:      "Escalation level decisions by validated level",
		}, []string{"level", "rate_limited"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbeing",
			Subsystem: "escalation",
			Name:      "outcomes_total",
			Help:      "Professional escalation outcomes",
		}, []string{"risk_level", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbeing",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notifications by recipient and status",
		}, []string{"recipient", "status"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbeing",
			Subsystem: "escalation",
			Name:      "actions_total",
			Help:      "Immediate protocol actions by kind and status",
		}, []string{"action", "status"}),
		sweepCohort: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wellbeing",
			Subsystem: "monitoring",
			Name:      "sweep_cohort_size",
			Help:      "Users in the most recent safety monitoring sweep",
		}),
		sweepFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wellbeing",
			Subsystem: "monitoring",
			Name:      "sweep_failures_total",
			Help:      "Users skipped by a sweep because processing failed",
		}),
		sweepEscalatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wellbeing",
			Subsystem: "monitoring",
			Name:      "sweep_escalations_total",
			Help:      "Escalations triggered by monitoring sweeps",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.assessmentsTotal,
		m.assessmentLatency,
		m.decisionsTotal,
		m.escalationsTotal,
		m.notificationsTotal,
		m.actionsTotal,
		m.sweepCohort,
		m.sweepFailuresTotal,
		m.sweepEscalatedTotal,
	)
	return m
}

func (m *SafetyMetrics) ObserveAssessment(riskLevel string, seconds float64) {
	if m == nil {
		return
	}
	m.assessmentsTotal.WithLabelValues(riskLevel).Inc()
	m.assessmentLatency.Observe(seconds)
}

func (m *SafetyMetrics) ObserveEscalationDecision(level int, rateLimited bool) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(levelLabel(level), boolLabel(rateLimited)).Inc()
}

func (m *SafetyMetrics) ObserveEscalationOutcome(riskLevel, outcome string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(riskLevel, outcome).Inc()
}

func (m *SafetyMetrics) ObserveNotification(recipient, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(recipient, status).Inc()
}

func (m *SafetyMetrics) ObserveAction(action, status string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(action, status).Inc()
}

func (m *SafetyMetrics) ObserveSweep(cohort, escalations, failures int) {
	if m == nil {
		return
	}
	m.sweepCohort.Set(float64(cohort))
	m.sweepEscalatedTotal.Add(float64(escalations))
	m.sweepFailuresTotal.Add(float64(failures))
}

func levelLabel(level int) string {
	switch level {
	case 1:
		return "preventive"
	case 2:
		return "responsive"
	case 3:
		return "intensive"
	case 4:
		return "crisis"
	}
	return "unknown"
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
