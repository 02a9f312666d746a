package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one server. Each server owns
// its registry so several can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	edgesTested      prometheus.Counter
	edgesSignificant prometheus.Counter
	partitionsTotal  *prometheus.CounterVec
	blocksFound      prometheus.Histogram
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hina",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hina",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		edgesTested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hina",
			Name:      "significance_edges_tested_total",
			Help:      "Edges tested against a null model.",
		}),
		edgesSignificant: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hina",
			Name:      "significance_edges_significant_total",
			Help:      "Edges found significant.",
		}),
		partitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hina",
			Name:      "partitions_total",
			Help:      "Clustering calls by method and status.",
		}, []string{"method", "status"}),
		blocksFound: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hina",
			Name:      "partition_blocks",
			Help:      "Number of blocks returned by clustering.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies per route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := wrapResponse(w)

		next.ServeHTTP(wrapper, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(wrapper.statusCode)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeSignificance(tested, significant int) {
	m.edgesTested.Add(float64(tested))
	m.edgesSignificant.Add(float64(significant))
}

func (m *Metrics) observePartition(method, status string, blocks int) {
	m.partitionsTotal.WithLabelValues(method, status).Inc()
	if status == "ok" {
		m.blocksFound.Observe(float64(blocks))
	}
}
