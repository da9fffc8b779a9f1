package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"groupbuy/internal/identity"
	"groupbuy/internal/models"
	"groupbuy/pkg/utils"
)

// PoolHandler отвечает за пулы совместной закупки
//
// Endpoints:
// - POST /api/v1/pools              - создание пула
// - GET /api/v1/pools/{id}          - получение пула
// - POST /api/v1/pools/{id}/expire  - принудительное истечение (только admin)
type PoolHandler struct {
	pools PoolService
	log   *utils.Logger
}

// NewPoolHandler создает новый PoolHandler
func NewPoolHandler(pools PoolService, log *utils.Logger) *PoolHandler {
	return &PoolHandler{
		pools: pools,
		log:   loggerOrGlobal(log).WithComponent("pool_handler"),
	}
}

// CreatePoolRequest структура запроса на создание пула
type CreatePoolRequest struct {
	ProductID      string    `json:"product_id"`
	SupplierID     string    `json:"supplier_id"`
	TargetQuantity int64     `json:"target_quantity"`
	ExpiresAt      time.Time `json:"expires_at"` // RFC3339
}

// PoolResponse пул с остатком до цели
type PoolResponse struct {
	*models.PoolGroup
	Remaining int64 `json:"remaining"`
}

func poolResponse(p *models.PoolGroup) PoolResponse {
	return PoolResponse{PoolGroup: p, Remaining: p.Remaining()}
}

// CreatePoolGroup создает открытый пул
// POST /api/v1/pools
//
// Request Body:
//
//	{
//	  "product_id": "sku-1",
//	  "supplier_id": "acme",
//	  "target_quantity": 10,
//	  "expires_at": "2026-02-01T00:00:00Z"
//	}
//
// Response:
// - 201 Created: пул создан
// - 403 Forbidden: аутентифицированный покупатель не может создавать пулы
// - 422 Unprocessable Entity: target <= 0, срок в прошлом, пустые поля
func (h *PoolHandler) CreatePoolGroup(w http.ResponseWriter, r *http.Request) {
	if actor, ok := identity.ActorFrom(r.Context()); ok && actor.Role == models.RoleBuyer {
		respondWithError(w, http.StatusForbidden, "forbidden", "Only suppliers and admins can create pools", "")
		return
	}

	var req CreatePoolRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pool, err := h.pools.CreatePoolGroup(r.Context(), req.ProductID, req.SupplierID, req.TargetQuantity, req.ExpiresAt)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, poolResponse(pool))
}

// GetPoolGroup возвращает пул
// GET /api/v1/pools/{id}
func (h *PoolHandler) GetPoolGroup(w http.ResponseWriter, r *http.Request) {
	pool, err := h.pools.GetPoolGroup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, poolResponse(pool))
}

// ExpirePool истекает пул, срок которого прошёл
// POST /api/v1/pools/{id}/expire
//
// Response:
// - 200 OK: пул в статусе EXPIRED
// - 403 Forbidden: актор не admin
// - 422 Unprocessable Entity: пул не OPEN или срок не прошёл
func (h *PoolHandler) ExpirePool(w http.ResponseWriter, r *http.Request) {
	if actor, ok := identity.ActorFrom(r.Context()); ok && !actor.IsAdmin() {
		respondWithError(w, http.StatusForbidden, "forbidden", "Admin role required", "")
		return
	}

	pool, err := h.pools.ExpirePool(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, poolResponse(pool))
}
