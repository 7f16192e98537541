// Package metrics exposes Prometheus instrumentation for the case API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseguard_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "caseguard_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	searchResultsSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "caseguard_search_results_total",
		Help:    "Histogram of total match counts returned by case searches.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	transitionsAdvanced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caseguard_status_transitions_total",
		Help: "Total number of cases advanced by the status transition job.",
	})
)

// Middleware records request counts and latencies labelled by chi route
// pattern, so per-case paths don't explode label cardinality.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			status := strconv.Itoa(ww.Status())
			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearch records the total match count of a search.
func ObserveSearch(totalCount int) {
	searchResultsSize.Observe(float64(totalCount))
}

// AddTransitions records cases advanced by the transition sweep.
func AddTransitions(n int64) {
	transitionsAdvanced.Add(float64(n))
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
