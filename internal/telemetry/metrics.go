package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// CycleLatency records how long one engine cycle took to run.
	CycleLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paperbot_cycle_latency_seconds",
		Help:    "Duration of one engine cycle.",
		Buckets: prometheus.DefBuckets,
	})

	// EquityGauge tracks current account equity.
	EquityGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paperbot_equity",
		Help: "Current account equity as reported by the broker.",
	})

	// DrawdownPctGauge tracks current drawdown from peak equity.
	DrawdownPctGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paperbot_drawdown_pct",
		Help: "Current drawdown percentage from peak equity.",
	})

	// OpenPositionsGauge tracks the number of currently open positions.
	OpenPositionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paperbot_open_positions",
		Help: "Current number of open positions held by the bot.",
	})

	// DecisionsTotal counts decisions by status (skipped/opened/closed/error).
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbot_decisions_total",
		Help: "Total number of trading decisions made, by status.",
	}, []string{"status"})

	// CircuitBreakerTrippedGauge is 1 while the circuit breaker is open.
	CircuitBreakerTrippedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paperbot_circuit_breaker_tripped",
		Help: "1 while the execution circuit breaker is tripped, else 0.",
	})

	// ResourceCPUPct mirrors the latest resource probe CPU reading.
	ResourceCPUPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paperbot_resource_cpu_pct",
		Help: "Most recent CPU load percentage sample.",
	})

	// ResourceTempC mirrors the latest resource probe temperature reading.
	ResourceTempC = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paperbot_resource_temp_celsius",
		Help: "Most recent best-effort temperature sample in Celsius.",
	})
)

func init() {
	prometheus.MustRegister(
		CycleLatency,
		EquityGauge,
		DrawdownPctGauge,
		OpenPositionsGauge,
		DecisionsTotal,
		CircuitBreakerTrippedGauge,
		ResourceCPUPct,
		ResourceTempC,
	)
}

// RecordSnapshot pushes a resource Snapshot into the corresponding gauges.
func RecordSnapshot(s Snapshot) {
	ResourceCPUPct.Set(s.CPUPct)
	ResourceTempC.Set(s.TempC)
}
