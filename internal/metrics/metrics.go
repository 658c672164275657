// Package metrics registers the Prometheus series the core updates
// during operation, generalized from the teacher's metrics.go
// (registered in init(), served via promhttp.Handler() on /metrics)
// onto this system's own component names: exit-state transitions,
// action-queue depth, indicator cache hit rate, risk rejections,
// positions and orders.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futurescore_orders_total",
			Help: "Orders placed, by exchange and side.",
		},
		[]string{"exchange", "side"},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futurescore_entry_decisions_total",
			Help: "Entry-orchestrator decisions, by kind (ENTER|SKIP) and reason.",
		},
		[]string{"kind", "reason"},
	)

	EquityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "futurescore_equity_usd",
			Help: "Latest account equity snapshot in USD.",
		},
	)

	ExitStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futurescore_exit_state_transitions_total",
			Help: "Exit state-machine transitions, by from/to state.",
		},
		[]string{"from", "to"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futurescore_trades_total",
			Help: "Closed trades, by result (win|loss).",
		},
		[]string{"result"},
	)

	ActionQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "futurescore_action_queue_depth",
			Help: "Number of actions currently queued, across both priorities.",
		},
	)

	IndicatorCacheHitRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "futurescore_indicator_cache_hit_rate_percent",
			Help: "Indicator cache hit rate as a percentage of total requests.",
		},
	)

	RiskRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futurescore_risk_rejections_total",
			Help: "Risk-manager rejections, by reason.",
		},
		[]string{"reason"},
	)

	SnapshotInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futurescore_snapshot_invalidations_total",
			Help: "MTF snapshot validation failures, by the gate's validation reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersTotal,
		DecisionsTotal,
		EquityUSD,
		ExitStateTransitionsTotal,
		TradesTotal,
		ActionQueueDepth,
		IndicatorCacheHitRate,
		RiskRejectionsTotal,
		SnapshotInvalidationsTotal,
	)
}

// RecordExitTransition increments the from/to transition counter.
func RecordExitTransition(from, to string) {
	ExitStateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordDecision increments the entry-decision counter.
func RecordDecision(kind, reason string) {
	DecisionsTotal.WithLabelValues(kind, reason).Inc()
}

// RecordRiskRejection increments the risk-rejection counter.
func RecordRiskRejection(reason string) {
	RiskRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordTrade increments the closed-trades counter for a win or loss.
func RecordTrade(pnl float64) {
	if pnl > 0 {
		TradesTotal.WithLabelValues("win").Inc()
		return
	}
	TradesTotal.WithLabelValues("loss").Inc()
}
