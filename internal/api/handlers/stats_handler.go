package handlers

import (
	"net/http"

	"groupbuy/pkg/utils"
)

// StatsHandler обрабатывает HTTP запросы агрегированной статистики.
//
// Endpoints:
// - GET /api/v1/stats - количество заказов и пулов по статусам
type StatsHandler struct {
	statsService StatsService
	log          *utils.Logger
}

// NewStatsHandler создает новый StatsHandler с внедрением зависимостей.
func NewStatsHandler(statsService StatsService, log *utils.Logger) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		log:          loggerOrGlobal(log).WithComponent("stats_handler"),
	}
}

// GetStats возвращает агрегированную статистику.
//
// GET /api/v1/stats
//
// Response 200 OK:
//
//	{
//	  "orders_by_status": {"DRAFT": 3, "POOLING": 12, "PROCESSING": 40},
//	  "pools_by_status": {"OPEN": 5, "FILLED": 4, "EXPIRED": 1},
//	  "open_quantity": 37
//	}
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.statsService == nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Stats service not configured", "")
		return
	}

	stats, err := h.statsService.Stats(r.Context())
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
