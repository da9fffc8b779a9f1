package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	delayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groupbuy",
		Subsystem: "ratelimit",
		Name:      "delayed_total",
		Help:      "Requests that waited for the next refill",
	}, []string{"endpoint"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groupbuy",
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Requests rejected because the next refill could not cover them",
	}, []string{"endpoint"})

	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "groupbuy",
		Subsystem: "ratelimit",
		Name:      "wait_seconds",
		Help:      "Time spent in admission control",
		Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 60},
	}, []string{"endpoint"})
)
