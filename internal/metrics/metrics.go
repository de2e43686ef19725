// Package metrics declares the Prometheus counters and gauges this service
// increments at its suspension-point boundaries: upstream HTTP calls, store
// calls, and scheduler run-state transitions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every counter/gauge this service exposes on /metrics.
type Registry struct {
	// Prom is the underlying registry every counter above was registered
	// against — admin exposes it on /metrics via promhttp.
	Prom *prometheus.Registry

	KlineTicksTotal       prometheus.Counter
	KlineUpsertsTotal     prometheus.Counter
	KlineFetchErrorsTotal prometheus.Counter
	KlineTrimsTotal       prometheus.Counter

	SchedulerClaimsTotal prometheus.Counter
	RunOutcomesTotal     *prometheus.CounterVec

	SandboxExecutionsTotal *prometheus.CounterVec
	SandboxTimeoutsTotal   prometheus.Counter

	ValidationDroppedTotal *prometheus.CounterVec
}

// NewRegistry builds and registers every metric against reg.
func NewRegistry(reg *prometheus.Registry) *Registry {
	m := &Registry{
		Prom: reg,
		KlineTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kline_ticks_total",
			Help: "Total kline manager ingestion ticks completed",
		}),
		KlineUpsertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kline_upserts_total",
			Help: "Total candles upserted into the kline store",
		}),
		KlineFetchErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kline_fetch_errors_total",
			Help: "Total venue fetch errors encountered by the kline manager",
		}),
		KlineTrimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kline_trims_total",
			Help: "Total fleet-wide retention trim passes performed",
		}),
		SchedulerClaimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_claims_total",
			Help: "Total projects claimed by the scheduler",
		}),
		RunOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_run_outcomes_total",
			Help: "Total project runs by terminal status",
		}, []string{"status"}),
		SandboxExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandbox_executions_total",
			Help: "Total sandboxed strategy executions by outcome",
		}, []string{"outcome"}),
		SandboxTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sandbox_timeouts_total",
			Help: "Total sandboxed strategy executions that hit the wall-clock timeout",
		}),
		ValidationDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "validation_dropped_total",
			Help: "Total row-shaped values dropped for failing Validate(), by type",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.KlineTicksTotal,
		m.KlineUpsertsTotal,
		m.KlineFetchErrorsTotal,
		m.KlineTrimsTotal,
		m.SchedulerClaimsTotal,
		m.RunOutcomesTotal,
		m.SandboxExecutionsTotal,
		m.SandboxTimeoutsTotal,
		m.ValidationDroppedTotal,
	)

	return m
}

// NewNoop builds a Registry backed by a fresh, unshared prometheus.Registry
// — useful for components constructed without a metrics dependency, e.g.
// in tests.
func NewNoop() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}
