package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"groupbuy/internal/models"
	"groupbuy/internal/service"
	"groupbuy/internal/validation"
	"groupbuy/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes ограничение размера тела запроса
const maxBodyBytes = 1 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error      string                       `json:"error"`
	Code       string                       `json:"code,omitempty"`
	Details    string                       `json:"details,omitempty"`
	Validation []validation.ValidationError `json:"validation,omitempty"` // все нарушенные правила
	Retryable  bool                         `json:"retryable,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// OrderService операции движка над заказами, нужные handlers
type OrderService interface {
	CreateOrder(ctx context.Context, ownerID string, items []models.OrderItem) (*models.Order, error)
	SubmitOrder(ctx context.Context, orderID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, to models.OrderStatus, actorID, note string) (*models.Order, error)
	JoinPool(ctx context.Context, orderID, poolID string, quantity int64) (*service.JoinResult, error)
	LeavePool(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, f models.OrderFilter) (*models.OrderPage, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	OrderHistory(ctx context.Context, orderID string) ([]*models.OrderHistoryEntry, error)
}

// PoolService операции движка над пулами
type PoolService interface {
	CreatePoolGroup(ctx context.Context, productID, supplierID string, target int64, expiresAt time.Time) (*models.PoolGroup, error)
	GetPoolGroup(ctx context.Context, poolID string) (*models.PoolGroup, error)
	ExpirePool(ctx context.Context, poolID string) (*models.PoolGroup, error)
}

// StatsService агрегаты для админки
type StatsService interface {
	Stats(ctx context.Context) (*models.Stats, error)
}

// decodeJSON читает тело запроса. Неизвестные поля отклоняются.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return false
	}
	return true
}

// handleServiceError переводит ошибку движка в HTTP ответ.
// Нарушения правил отдаются полным списком.
func handleServiceError(w http.ResponseWriter, log *utils.Logger, err error) {
	if vc, ok := service.Validation(err); ok {
		status := http.StatusUnprocessableEntity
		code := "validation_failed"
		switch {
		case errors.Is(err, service.ErrInvalidTransition):
			status, code = http.StatusConflict, "invalid_transition"
		case errors.Is(err, service.ErrCapacityExceeded):
			status, code = http.StatusConflict, "capacity_exceeded"
		}
		respondWithJSON(w, status, ErrorResponse{
			Error:      "Validation failed",
			Code:       code,
			Validation: vc.Errors(),
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", "Resource not found", err.Error())

	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "forbidden", "Not allowed to modify this order", "")

	case errors.Is(err, service.ErrConflict):
		respondWithJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "Concurrent modification, retry the request",
			Code:      "conflict",
			Retryable: true,
		})

	case errors.Is(err, service.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		respondWithError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests", "")

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusServiceUnavailable, "request_cancelled", "Request cancelled or timed out", "")

	default:
		log.Error("unhandled service error", utils.Err(err))
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// respondWithValidation 422 с нарушениями, найденными на границе API
func respondWithValidation(w http.ResponseWriter, vc *validation.Context) {
	respondWithJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:      "Validation failed",
		Code:       "validation_failed",
		Validation: vc.Errors(),
	})
}

func loggerOrGlobal(log *utils.Logger) *utils.Logger {
	if log == nil {
		return utils.L()
	}
	return log
}
