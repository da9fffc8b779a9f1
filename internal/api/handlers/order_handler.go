package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"groupbuy/internal/identity"
	"groupbuy/internal/models"
	"groupbuy/internal/validation"
	"groupbuy/pkg/utils"
)

// OrderHandler отвечает за заказы покупателей и их участие в пулах
//
// Endpoints:
// - POST /api/v1/orders               - создание заказа (DRAFT)
// - GET /api/v1/orders                - список заказов с фильтром и пагинацией
// - GET /api/v1/orders/{id}           - получение заказа
// - POST /api/v1/orders/{id}/submit   - отправка заказа (DRAFT -> PENDING)
// - POST /api/v1/orders/{id}/join     - вступление в пул
// - POST /api/v1/orders/{id}/leave    - выход из пула
// - PATCH /api/v1/orders/{id}/status  - ручная смена статуса
// - GET /api/v1/orders/{id}/history   - журнал переходов
type OrderHandler struct {
	orders OrderService
	log    *utils.Logger
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимостей
func NewOrderHandler(orders OrderService, log *utils.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		log:    loggerOrGlobal(log).WithComponent("order_handler"),
	}
}

// CreateOrderRequest структура запроса на создание заказа
type CreateOrderRequest struct {
	OwnerID string             `json:"owner_id"` // игнорируется, если запрос аутентифицирован
	Items   []models.OrderItem `json:"items"`
}

// JoinPoolRequest структура запроса на вступление в пул
type JoinPoolRequest struct {
	PoolGroupID string `json:"pool_group_id"`
	Quantity    int64  `json:"quantity"`
}

// UpdateStatusRequest структура запроса на смену статуса
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// CreateOrder создает заказ в статусе DRAFT
// POST /api/v1/orders
//
// Request Body:
//
//	{
//	  "owner_id": "buyer-1",
//	  "items": [{"product_id": "sku-1", "quantity": 3, "unit_price": 1500}]
//	}
//
// Response:
// - 201 Created: заказ создан
// - 400 Bad Request: невалидный JSON
// - 422 Unprocessable Entity: нарушены правила (все сразу)
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ownerID := req.OwnerID
	if actor, ok := identity.ActorFrom(r.Context()); ok {
		ownerID = actor.ID
	}

	order, err := h.orders.CreateOrder(r.Context(), ownerID, req.Items)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, order)
}

// ListOrders возвращает страницу заказов
// GET /api/v1/orders
//
// Query Parameters:
// - user_id, supplier_id, pool_group_id: точные фильтры
// - status: один из DRAFT, PENDING, POOLING, PROCESSING, COMPLETED, CANCELLED
// - page, limit: пагинация (limit <= 100)
//
// Response:
// - 200 OK: {"items": [...], "total": 42, "page": 1, "limit": 20}
// - 422 Unprocessable Entity: неизвестный статус или неверная пагинация
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, vc := validation.OrderFilter(validation.RawOrderFilter{
		UserID:      q.Get("user_id"),
		SupplierID:  q.Get("supplier_id"),
		Status:      q.Get("status"),
		PoolGroupID: q.Get("pool_group_id"),
		Page:        q.Get("page"),
		Limit:       q.Get("limit"),
	})
	if !vc.IsValid() {
		respondWithValidation(w, vc)
		return
	}

	page, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

// GetOrder возвращает заказ
// GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

// SubmitOrder переводит заказ из DRAFT в PENDING
// POST /api/v1/orders/{id}/submit
//
// Response:
// - 200 OK: обновленный заказ
// - 404 Not Found: заказ не найден
// - 409 Conflict: заказ не в DRAFT
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.SubmitOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

// JoinPool добавляет вклад заказа в пул
// POST /api/v1/orders/{id}/join
//
// Request Body:
//
//	{"pool_group_id": "6b1f...", "quantity": 4}
//
// Response:
// - 200 OK: {"order": {...}, "pool": {...}, "filled": true}
// - 409 Conflict: capacity_exceeded, invalid_transition или конкурентное изменение (retryable)
// - 422 Unprocessable Entity: пул закрыт/истёк, quantity <= 0, повторное участие
// - 429 Too Many Requests: admission control
func (h *OrderHandler) JoinPool(w http.ResponseWriter, r *http.Request) {
	var req JoinPoolRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.orders.JoinPool(r.Context(), mux.Vars(r)["id"], req.PoolGroupID, req.Quantity)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// LeavePool отзывает вклад заказа и отменяет его
// POST /api/v1/orders/{id}/leave
func (h *OrderHandler) LeavePool(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.LeavePool(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

// UpdateOrderStatus ручной переход по таблице состояний
// PATCH /api/v1/orders/{id}/status
//
// Request Body:
//
//	{"status": "COMPLETED", "note": "delivered"}
//
// Response:
// - 200 OK: обновленный заказ
// - 409 Conflict: переход не разрешён (from/to в validation)
// - 422 Unprocessable Entity: неизвестный статус
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	to, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		vc := validation.New()
		vc.Addf("status", validation.CodeUnknownValue, "unknown status %q", req.Status)
		respondWithValidation(w, vc)
		return
	}

	// актор берётся движком из контекста запроса
	order, err := h.orders.UpdateOrderStatus(r.Context(), mux.Vars(r)["id"], to, "", req.Note)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

// OrderHistory возвращает журнал переходов заказа в порядке фиксации
// GET /api/v1/orders/{id}/history
func (h *OrderHandler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.orders.OrderHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	if entries == nil {
		entries = []*models.OrderHistoryEntry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}
