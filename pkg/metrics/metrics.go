package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orchestrator holds the process-wide prometheus collectors. Construct once
// in main and pass down; tests use Nop.
type Orchestrator struct {
	SagaOutcomes    *prometheus.CounterVec
	DispatchTotal   *prometheus.CounterVec
	GatewayAttempts *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
	ReconcileRuns   prometheus.Counter
	StuckOrders     prometheus.Gauge
}

func NewOrchestrator(reg prometheus.Registerer) *Orchestrator {
	m := &Orchestrator{
		SagaOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Name:      "saga_outcomes_total",
			Help:      "Terminal order outcomes by status.",
		}, []string{"outcome"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Name:      "event_dispatch_total",
			Help:      "Outbox event dispatches by event type and result.",
		}, []string{"event_type", "result"}),
		GatewayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Name:      "gateway_attempts_total",
			Help:      "Outbound collaborator calls by target and result.",
		}, []string{"target", "result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per target (0 closed, 1 open, 2 half-open).",
		}, []string{"target"}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation worker ticks.",
		}),
		StuckOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Name:      "stuck_orders",
			Help:      "Non-terminal orders past the stuck threshold at the last tick.",
		}),
	}
	reg.MustRegister(
		m.SagaOutcomes, m.DispatchTotal, m.GatewayAttempts,
		m.BreakerState, m.ReconcileRuns, m.StuckOrders,
	)
	return m
}

// Nop returns collectors bound to a throwaway registry.
func Nop() *Orchestrator {
	return NewOrchestrator(prometheus.NewRegistry())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
