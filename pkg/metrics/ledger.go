package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts billing ledger writes and dispatcher outcomes.
type LedgerMetrics struct {
	written    *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	skipped    *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	labels := []string{"provider", "event_type"}
	m := &LedgerMetrics{
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rows_written_total",
			Help:      "Ledger rows inserted.",
		}, labels),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "duplicates_total",
			Help:      "Ledger rows skipped as duplicates.",
		}, labels),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "skipped_total",
			Help:      "Payloads or pricing blocks skipped without a write, by reason.",
		}, []string{"reason"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "envelopes_total",
			Help:      "Envelopes processed by detected provider.",
		}, []string{"provider"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "item_failures_total",
			Help:      "Per-item failures contained by the dispatcher, by stage.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.written, m.duplicates, m.skipped, m.dispatched, m.failures)
	return m
}

func (m *LedgerMetrics) IncWritten(provider, eventType string) {
	if m == nil || m.written == nil {
		return
	}
	m.written.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

func (m *LedgerMetrics) IncDuplicate(provider, eventType string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

func (m *LedgerMetrics) IncSkipped(reason string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LedgerMetrics) IncDispatched(provider string) {
	if m == nil || m.dispatched == nil {
		return
	}
	m.dispatched.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *LedgerMetrics) IncItemFailure(stage string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(stage)).Inc()
}
