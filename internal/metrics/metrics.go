// Package metrics exports pipeline and provider health to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokenscout/tokenscout/internal/pipeline"
)

// Registry holds every collector the scanner exports. It implements
// pipeline.Observer so the controller can push per-cycle cost reports.
type Registry struct {
	reg *prometheus.Registry

	cyclesTotal    prometheus.Counter
	cycleDuration  prometheus.Histogram
	stageSurvivors *prometheus.GaugeVec

	expensiveCallsMade  prometheus.Counter
	expensiveCallsSaved prometheus.Counter
	batchCalls          prometheus.Counter
	individualCalls     prometheus.Counter
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	prefilterDrops      prometheus.Counter
	parseErrors         prometheus.Counter
	savingsPct          prometheus.Gauge

	breakerTripped *prometheus.GaugeVec
}

// NewRegistry creates and registers all scanner collectors.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenscout_cycles_total",
		Help: "Completed scan cycles",
	})
	r.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tokenscout_cycle_duration_seconds",
		Help:    "Wall clock duration of scan cycles",
		Buckets: []float64{1, 5, 15, 30, 60, 90, 120, 180},
	})
	r.stageSurvivors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tokenscout_stage_survivors",
		Help: "Candidates surviving each pipeline stage in the last cycle",
	}, []string{"stage"})

	r.expensiveCallsMade = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenscout_expensive_calls_made_total",
		Help: "Expensive OHLCV fetches performed",
	})
	r.expensiveCallsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenscout_expensive_calls_saved_total",
		Help: "Expensive OHLCV fetches avoided by progressive filtering",
	})
	r.batchCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenscout_batch_calls_total",
		Help: "Batched provider calls",
	})
	r.individualCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenscout_individual_calls_total",
		Help: "Individual fallback provider calls",
	})
	r.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenscout_cache_hits_total",
		Help: "Enrichment cache hits",
	})
	r.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenscout_cache_misses_total",
		Help: "Enrichment cache misses",
	})
	r.prefilterDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenscout_prefilter_drops_total",
		Help: "Candidates dropped before stage 1",
	})
	r.parseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenscout_parse_errors_total",
		Help: "Provider responses that failed to parse",
	})
	r.savingsPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tokenscout_call_savings_ratio",
		Help: "Share of potential expensive calls avoided in the last cycle",
	})
	r.breakerTripped = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tokenscout_breaker_tripped",
		Help: "1 if the provider's circuit breaker has opened since start",
	}, []string{"provider"})

	r.reg.MustRegister(
		r.cyclesTotal, r.cycleDuration, r.stageSurvivors,
		r.expensiveCallsMade, r.expensiveCallsSaved,
		r.batchCalls, r.individualCalls,
		r.cacheHits, r.cacheMisses,
		r.prefilterDrops, r.parseErrors, r.savingsPct,
		r.breakerTripped,
	)
	return r
}

// Prometheus exposes the underlying registry for the /metrics handler.
func (r *Registry) Prometheus() *prometheus.Registry { return r.reg }

// ObserveCycle records one cycle's cost report.
func (r *Registry) ObserveCycle(report pipeline.CostReport) {
	r.cyclesTotal.Inc()
	r.cycleDuration.Observe(report.WallClock.Seconds())

	for stage, n := range report.SurvivorsByStage {
		r.stageSurvivors.WithLabelValues(stage).Set(float64(n))
	}

	r.expensiveCallsMade.Add(float64(report.ExpensiveCallsMade))
	r.expensiveCallsSaved.Add(float64(report.ExpensiveCallsSaved))
	r.batchCalls.Add(float64(report.BatchCalls))
	r.individualCalls.Add(float64(report.IndividualCalls))
	r.cacheHits.Add(float64(report.CacheHits))
	r.cacheMisses.Add(float64(report.CacheMisses))
	r.prefilterDrops.Add(float64(report.PrefilterDrops))
	r.parseErrors.Add(float64(report.ParseErrors))
	r.savingsPct.Set(report.SavingsPct)

	for provider, tripped := range report.BreakerTripped {
		v := 0.0
		if tripped {
			v = 1.0
		}
		r.breakerTripped.WithLabelValues(provider).Set(v)
	}
}
