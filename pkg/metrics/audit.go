package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerAuditMetrics counts the outcome of event-driven balance checks.
type LedgerAuditMetrics struct {
	checks *prometheus.CounterVec
}

func NewLedgerAuditMetrics(reg prometheus.Registerer) *LedgerAuditMetrics {
	if reg == nil {
		return &LedgerAuditMetrics{}
	}
	m := &LedgerAuditMetrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastelink_ledger_audit_checks_total",
			Help: "Ledger audits triggered by lifecycle events, by outcome.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.checks)
	return m
}

func (m *LedgerAuditMetrics) Inc(eventType, result string) {
	if m == nil || m.checks == nil {
		return
	}
	m.checks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
