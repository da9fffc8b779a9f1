package service

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"groupbuy/internal/models"
)

// ============================================================
// Prometheus метрики движка пулов
// ============================================================

// OperationDuration длительность операций движка (включая повторы)
var OperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "groupbuy",
		Subsystem: "engine",
		Name:      "operation_duration_seconds",
		Help:      "Duration of engine operations including retries",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	},
	[]string{"operation", "outcome"},
)

// TransitionsTotal зафиксированные переходы заказов
var TransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "groupbuy",
		Subsystem: "engine",
		Name:      "transitions_total",
		Help:      "Committed order status transitions",
	},
	[]string{"from", "to"},
)

// PoolOutcomes пулы, перешедшие в финальный статус
var PoolOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "groupbuy",
		Subsystem: "engine",
		Name:      "pool_outcomes_total",
		Help:      "Pools that reached FILLED or EXPIRED",
	},
	[]string{"status"},
)

// StorageRetries повторы единиц работы после конфликта хранилища
var StorageRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "groupbuy",
		Subsystem: "engine",
		Name:      "storage_retries_total",
		Help:      "Units of work retried after a storage conflict",
	},
	[]string{"operation"},
)

// PublishFailures события, которые не удалось доставить после фиксации
var PublishFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "groupbuy",
		Subsystem: "engine",
		Name:      "publish_failures_total",
		Help:      "Events that failed to publish after commit",
	},
	[]string{"kind"},
)

// ============ Хелперы ============

// RecordOperation записывает длительность и исход операции
func RecordOperation(operation string, err error, d time.Duration) {
	OperationDuration.WithLabelValues(operation, outcome(err)).Observe(d.Seconds())
}

// RecordTransitions учитывает зафиксированные переходы
func RecordTransitions(events []models.TransitionEvent) {
	for _, ev := range events {
		TransitionsTotal.WithLabelValues(string(ev.FromStatus), string(ev.ToStatus)).Inc()
	}
}

// RecordPoolOutcome учитывает заполнение или истечение пула
func RecordPoolOutcome(status models.PoolStatus) {
	PoolOutcomes.WithLabelValues(string(status)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
