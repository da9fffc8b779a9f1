package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "groupbuy",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupbuy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// PanicsRecovered паники, перехваченные Recovery
	PanicsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "groupbuy",
			Subsystem: "http",
			Name:      "panics_recovered_total",
			Help:      "Total number of recovered handler panics",
		},
	)
)

// Metrics собирает Prometheus метрики по шаблону маршрута
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrap(w)

		next.ServeHTTP(wrapped, r)

		// шаблон маршрута вместо пути, чтобы id не раздували кардинальность
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		status := strconv.Itoa(wrapped.statusCode)
		requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		requestCount.WithLabelValues(r.Method, route, status).Inc()
	})
}
