package metrics

import "github.com/prometheus/client_golang/prometheus"

// ScheduleMetrics exposes counters for the appointment workflow.
type ScheduleMetrics struct {
	attemptsTotal  *prometheus.CounterVec
	remoteFailures *prometheus.CounterVec
	orphanedTotal  prometheus.Counter
	reconciled     prometheus.Counter
}

func NewScheduleMetrics(reg prometheus.Registerer) *ScheduleMetrics {
	m := &ScheduleMetrics{
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "attempts_total",
			Help:      "Appointment workflow operations by outcome",
		}, []string{"operation", "outcome"}),
		remoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "calendar_failures_total",
			Help:      "Failed calendar-service calls by operation",
		}, []string{"operation"}),
		orphanedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "orphaned_appointments_total",
			Help:      "Local appointments left without a mirrored calendar event",
		}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "reconciled_appointments_total",
			Help:      "Orphaned appointments successfully re-mirrored",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.attemptsTotal, m.remoteFailures, m.orphanedTotal, m.reconciled)
	return m
}

func (m *ScheduleMetrics) ObserveAttempt(operation, outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *ScheduleMetrics) ObserveRemoteFailure(operation string) {
	if m == nil {
		return
	}
	m.remoteFailures.WithLabelValues(operation).Inc()
}

func (m *ScheduleMetrics) ObserveOrphan() {
	if m == nil {
		return
	}
	m.orphanedTotal.Inc()
}

func (m *ScheduleMetrics) ObserveReconciled() {
	if m == nil {
		return
	}
	m.reconciled.Inc()
}
