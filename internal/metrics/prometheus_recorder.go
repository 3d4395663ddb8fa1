package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "bakery"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	bakeDuration       prom.Histogram
	bakeOutcome        *prom.CounterVec
	passDuration       *prom.HistogramVec
	jobResults         *prom.CounterVec
	workers            prom.Gauge
	cacheInvalidations *prom.CounterVec
	staleDeletions     prom.Counter
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		bakeDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "bake_duration_seconds",
			Help:      "Total bake duration",
			Buckets:   prom.DefBuckets,
		}),
		bakeOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "bake_outcomes_total",
			Help:      "Bake outcomes by final status",
		}, []string{"outcome"}),
		passDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of each realm pass, barrier to barrier",
			Buckets:   prom.DefBuckets,
		}, []string{"realm", "pass"}),
		jobResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_results_total",
			Help:      "Job results by pipeline and outcome",
		}, []string{"pipeline", "result"}),
		workers: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Workers running in the last bake",
		}),
		cacheInvalidations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Full rebuilds by invalidation reason",
		}, []string{"reason"}),
		staleDeletions: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stale_outputs_deleted_total",
			Help:      "Output files removed because no current entry produces them",
		}),
	}
	reg.MustRegister(pr.bakeDuration, pr.bakeOutcome, pr.passDuration, pr.jobResults,
		pr.workers, pr.cacheInvalidations, pr.staleDeletions)
	return pr
}

func (p *PrometheusRecorder) ObserveBakeDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.bakeDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBakeOutcome(outcome BakeOutcomeLabel) {
	if p == nil {
		return
	}
	p.bakeOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObservePassDuration(realm string, pass int, d time.Duration) {
	if p == nil {
		return
	}
	p.passDuration.WithLabelValues(realm, strconv.Itoa(pass)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobResult(pipeline string, result JobResultLabel) {
	if p == nil {
		return
	}
	p.jobResults.WithLabelValues(pipeline, string(result)).Inc()
}

func (p *PrometheusRecorder) SetWorkers(n int) {
	if p == nil {
		return
	}
	p.workers.Set(float64(n))
}

func (p *PrometheusRecorder) IncCacheInvalidation(reason string) {
	if p == nil {
		return
	}
	p.cacheInvalidations.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) AddStaleDeletions(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.staleDeletions.Add(float64(n))
}
