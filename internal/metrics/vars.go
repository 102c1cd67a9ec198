package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SignalsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbcore_signals_generated_total",
		Help: "Signals produced by the generator, regardless of admission outcome",
	})

	SignalsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_signals_dropped_total",
		Help: "Signals dropped before execution, labeled by reason",
	}, []string{"reason"})

	ExecutionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbcore_executions_started_total",
		Help: "Executions handed to the executor",
	})

	ExecutionsDone = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_executions_done_total",
		Help: "Finished executions, labeled by terminal state",
	}, []string{"state"})

	BreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_breaker_trips_total",
		Help: "Circuit breaker open transitions, labeled by pair",
	}, []string{"pair"})

	SafetyViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_safety_violations_total",
		Help: "Absolute safety-gate violations, labeled by rule",
	}, []string{"rule"})

	RealizedPnlUSD = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbcore_realized_pnl_usd",
		Help: "Cumulative realized P&L across both venues",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbcore_queue_depth",
		Help: "Current number of signals waiting in the priority queue",
	})
)

func init() {
	prometheus.MustRegister(
		SignalsGenerated,
		SignalsDropped,
		ExecutionsStarted,
		ExecutionsDone,
		BreakerTrips,
		SafetyViolations,
		RealizedPnlUSD,
		QueueDepth,
	)
}
