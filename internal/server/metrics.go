package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wattview_http_requests_total",
			Help: "API requests by path and status code.",
		},
		[]string{"path", "code"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wattview_http_request_duration_seconds",
			Help:    "API request latency by path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		requestsTotal.WithLabelValues(
			r.URL.Path, strconv.Itoa(rec.status),
		).Inc()
		requestDuration.WithLabelValues(r.URL.Path).
			Observe(time.Since(start).Seconds())
	})
}
