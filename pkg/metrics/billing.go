package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BillingSweepMetrics records outcomes of the recurring billing sweep.
type BillingSweepMetrics struct {
	cycles     *prometheus.CounterVec
	escalated  prometheus.Counter
	dueBacklog prometheus.Gauge
}

// NewBillingSweepMetrics registers the billing sweep metrics on the provided registerer.
func NewBillingSweepMetrics(reg prometheus.Registerer) *BillingSweepMetrics {
	if reg == nil {
		return &BillingSweepMetrics{}
	}
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_cycles_processed",
		Help: "Billing cycles handled by the sweep, labeled by outcome.",
	}, []string{"outcome"})
	escalated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_subscriptions_escalated",
		Help: "Subscriptions moved to past_due after exhausting retries.",
	})
	dueBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billing_due_backlog",
		Help: "Upcoming cycles due at the start of the latest sweep.",
	})
	reg.MustRegister(cycles, escalated, dueBacklog)
	return &BillingSweepMetrics{
		cycles:     cycles,
		escalated:  escalated,
		dueBacklog: dueBacklog,
	}
}

// IncCycle counts one processed cycle with the given outcome label.
func (b *BillingSweepMetrics) IncCycle(outcome string) {
	if b == nil || b.cycles == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	b.cycles.WithLabelValues(outcome).Inc()
}

// IncEscalated counts a subscription escalated to past_due.
func (b *BillingSweepMetrics) IncEscalated() {
	if b == nil || b.escalated == nil {
		return
	}
	b.escalated.Inc()
}

// SetDueBacklog records how many cycles were due when a sweep started.
func (b *BillingSweepMetrics) SetDueBacklog(n int) {
	if b == nil || b.dueBacklog == nil {
		return
	}
	b.dueBacklog.Set(float64(n))
}
