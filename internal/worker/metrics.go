package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry       *prometheus.Registry
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	activeJobs     prometheus.Gauge
	sourcesTotal   prometheus.Counter
	variantsWarmed prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelpack_worker_warm_jobs_total",
			Help: "Total warmup jobs by final status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelpack_worker_warm_job_duration_seconds",
			Help:    "Total duration of each warmup job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelpack_worker_active_jobs",
			Help: "Current number of warmup jobs being processed.",
		}),
		sourcesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpack_worker_sources_total",
			Help: "Total sources decoded from warmup jobs.",
		}),
		variantsWarmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpack_worker_variants_warmed_total",
			Help: "Total variants rendered or confirmed cached by warmup jobs.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.sourcesTotal,
		m.variantsWarmed,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
