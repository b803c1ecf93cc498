package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SpreadPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_spread_pct",
		Help: "Best cross-venue round-trip spread (percent)",
	})

	NetProfitUSD = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_net_profit_usd",
		Help: "Estimated net profit of the last evaluated opportunity",
	})

	GasPriceGwei = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_gas_price_gwei",
		Help: "Last observed network gas price in gwei",
	})

	AttemptsToday = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_attempts_today",
		Help: "Live transaction attempts made today",
	})

	BudgetSpentUSD = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_budget_spent_usd",
		Help: "Cumulative gas spend in USD this process lifetime",
	})

	GateRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_gate_rejections_total",
		Help: "Opportunities rejected, by gate reason",
	}, []string{"reason"})

	QuoterErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_quoter_errors_total",
		Help: "Number of venue quote failures",
	})

	QuoteLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_quoter_latency_seconds",
		Help:    "Time to obtain a venue quote",
		Buckets: prometheus.DefBuckets,
	})

	SimulationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_simulation_failures_total",
		Help: "Dry-call simulations that reverted",
	})

	TxSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_tx_submitted_total",
		Help: "Live transactions broadcast",
	})

	TxReverted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_tx_reverted_total",
		Help: "Submitted transactions that reverted on-chain",
	})
)

func init() {
	prometheus.MustRegister(
		SpreadPct,
		NetProfitUSD,
		GasPriceGwei,
		AttemptsToday,
		BudgetSpentUSD,
		GateRejections,
		QuoterErrors,
		QuoteLatency,
		SimulationFailures,
		TxSubmitted,
		TxReverted,
	)
}
