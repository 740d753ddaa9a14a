package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for ledger operations.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// LedgerMetrics captures token ledger health signals. A nil *LedgerMetrics
// is valid and records nothing.
type LedgerMetrics struct {
	entries   *prometheus.CounterVec
	tokens    *prometheus.CounterVec
	drift     prometheus.Counter
	duration  *prometheus.HistogramVec
	rateLimit *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Ledger entries appended, by reason kind.",
		}, []string{"reason_kind"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_tokens_total",
			Help: "Absolute token volume moved, by direction.",
		}, []string{"direction"}),
		drift: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_projection_drift_total",
			Help: "Wallet projections found disagreeing with the ledger and rebuilt.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Latency of ledger operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_admin_grant_rate_limited_total",
			Help: "Admin grant requests evaluated by the rate limiter.",
		}, []string{"decision"}),
	}

	if reg != nil {
		reg.MustRegister(m.entries, m.tokens, m.drift, m.duration, m.rateLimit)
	}
	return m
}

// RecordEntry counts one appended entry.
func (m *LedgerMetrics) RecordEntry(reason string, delta int64) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(ReasonKind(reason)).Inc()
	if delta >= 0 {
		m.tokens.WithLabelValues("credit").Add(float64(delta))
	} else {
		m.tokens.WithLabelValues("debit").Add(float64(-delta))
	}
}

// RecordDrift counts one repaired projection.
func (m *LedgerMetrics) RecordDrift() {
	if m == nil {
		return
	}
	m.drift.Inc()
}

// ObserveOperation records the latency of op since start.
func (m *LedgerMetrics) ObserveOperation(op, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// RecordRateLimit counts a limiter decision.
func (m *LedgerMetrics) RecordRateLimit(allowed bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	m.rateLimit.WithLabelValues(decision).Inc()
}

// ReasonKind collapses a free-form reason into a bounded label value.
// "usage:report_export" becomes "usage".
func ReasonKind(reason string) string {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return "unknown"
	}
	if idx := strings.IndexByte(reason, ':'); idx > 0 {
		return reason[:idx]
	}
	switch reason {
	case "purchase", "admin_grant", "signup_bonus", "refund", "adjustment":
		return reason
	}
	return "other"
}
