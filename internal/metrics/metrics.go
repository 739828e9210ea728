package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// LedgerMetrics holds counters for every balance-changing operation
type LedgerMetrics struct {
	CommissionsTotal       *prometheus.CounterVec
	CommissionAmountTotal  *prometheus.CounterVec
	CashoutsTotal          *prometheus.CounterVec
	CashoutAmountTotal     *prometheus.CounterVec
	CashoutRejectionsTotal *prometheus.CounterVec
	InvariantViolations    prometheus.Counter
	SalesConsumedTotal     *prometheus.CounterVec
	EventsPublishedTotal   prometheus.Counter
	OperationDuration      *prometheus.HistogramVec
}

// Register metrics in reg. Pass prometheus.NewRegistry() in tests to avoid duplicate registration panics
func New(reg prometheus.Registerer) *LedgerMetrics {
	f := promauto.With(reg)

	return &LedgerMetrics{
		CommissionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_commissions_total",
				Help: "Commission transitions by resulting status",
			},
			[]string{"status"},
		),
		CommissionAmountTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_commission_amount_total",
				Help: "Sum of commission amounts by resulting status",
			},
			[]string{"status"},
		),
		CashoutsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cashouts_total",
				Help: "Cashout requests by status",
			},
			[]string{"status"},
		),
		CashoutAmountTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cashout_amount_total",
				Help: "Sum of requested cashout amounts by status",
			},
			[]string{"status"},
		),
		CashoutRejectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cashout_validation_failures_total",
				Help: "Cashout requests refused before creation, by reason",
			},
			[]string{"reason"},
		),
		InvariantViolations: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_invariant_violations_total",
				Help: "Operations that would make a balance negative; accounts are flagged for reconciliation",
			},
		),
		SalesConsumedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_sales_consumed_total",
				Help: "Sale messages consumed from the broker by outcome",
			},
			[]string{"outcome"},
		),
		EventsPublishedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_events_published_total",
				Help: "Outbox events published to the broker",
			},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
			},
			[]string{"operation"},
		),
	}
}

// Metrics that drop everything. Used when caller does not care
func NewNoop() *LedgerMetrics {
	return New(prometheus.NewRegistry())
}

func (m *LedgerMetrics) RecordCommission(status string, amount decimal.Decimal) {
	m.CommissionsTotal.WithLabelValues(status).Inc()
	m.CommissionAmountTotal.WithLabelValues(status).Add(toFloat(amount))
}

func (m *LedgerMetrics) RecordCashout(status string, amount decimal.Decimal) {
	m.CashoutsTotal.WithLabelValues(status).Inc()
	m.CashoutAmountTotal.WithLabelValues(status).Add(toFloat(amount))
}

func (m *LedgerMetrics) RecordCashoutRefused(reason string) {
	m.CashoutRejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *LedgerMetrics) RecordInvariantViolation() {
	m.InvariantViolations.Inc()
}

func (m *LedgerMetrics) RecordSale(outcome string) {
	m.SalesConsumedTotal.WithLabelValues(outcome).Inc()
}

func (m *LedgerMetrics) RecordPublished(n int) {
	m.EventsPublishedTotal.Add(float64(n))
}

func (m *LedgerMetrics) ObserveDuration(operation string, seconds float64) {
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
