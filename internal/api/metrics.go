package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// renderBuckets span cache hits (sub-millisecond) up to cold multi-variant
// transforms of large originals.
var renderBuckets = []float64{.001, .005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30}

type metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
	renders         *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	warmEnqueued    *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelpack",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixelpack",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelpack",
			Subsystem: "api",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelpack",
			Subsystem: "markup",
			Name:      "renders_total",
			Help:      "Markup renders by kind and outcome.",
		}, []string{"kind", "outcome"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixelpack",
			Subsystem: "markup",
			Name:      "render_duration_seconds",
			Help:      "Time spent building markup, transforms included.",
			Buckets:   renderBuckets,
		}, []string{"kind"}),
		warmEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelpack",
			Subsystem: "queue",
			Name:      "warmups_enqueued_total",
			Help:      "Warmup tasks handed to the queue.",
		}, []string{"queue"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.rateLimited,
		m.renders,
		m.renderDuration,
		m.warmEnqueued,
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeRender records one builder call of kind that started at start.
func (m *metrics) observeRender(kind string, start time.Time, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	m.renders.WithLabelValues(kind, outcome).Inc()
	m.renderDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

var knownRoutes = map[string]bool{
	"/healthz":        true,
	"/metrics":        true,
	"/v1/picture":     true,
	"/v1/img":         true,
	"/v1/placeholder": true,
	"/v1/transform":   true,
	"/v1/warm":        true,
	"/v1/assets":      true,
}

// routeLabel maps a request path to its route pattern.
func routeLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	for _, prefix := range []string{"/v1/assets/", "/v1/warm/"} {
		if id, ok := strings.CutPrefix(path, prefix); ok && id != "" && !strings.Contains(id, "/") {
			return prefix + "{id}"
		}
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
