package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"groupbuy/internal/api/handlers"
	"groupbuy/internal/api/middleware"
	"groupbuy/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Orders handlers.OrderService
	Pools  handlers.PoolService
	Stats  handlers.StatsService

	// Stream websocket-поток событий (/ws/stream), nil = маршрут не регистрируется
	Stream http.Handler
	// Ping проверка хранилища для /health, nil = всегда OK
	Ping func(ctx context.Context) error

	Auth           middleware.AuthConfig
	AllowedOrigins []string
	Logger         *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /orders/
//	│   ├── POST / - создать заказ
//	│   ├── GET / - список заказов (фильтр, пагинация)
//	│   ├── GET /{id} - получить заказ
//	│   ├── POST /{id}/submit - отправить заказ
//	│   ├── POST /{id}/join - вступить в пул
//	│   ├── POST /{id}/leave - выйти из пула
//	│   ├── PATCH /{id}/status - сменить статус
//	│   └── GET /{id}/history - журнал переходов
//	├── /pools/
//	│   ├── POST / - создать пул
//	│   ├── GET /{id} - получить пул
//	│   └── POST /{id}/expire - истечь пул (admin)
//	└── /stats/
//	    └── GET / - сводка по статусам
//
// /ws/
//
//	└── /stream - WebSocket для real-time обновлений (?pool_group_id= для подписки на пул)
//
// /metrics, /health
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Metrics (для всех маршрутов)
// 3. Logging (для всех маршрутов)
// 4. CORS (для всех маршрутов)
// 5. Auth (/api/v1 и /ws)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}
	log := deps.Logger
	if log == nil {
		log = utils.L()
	}
	if deps.Auth.Logger == nil {
		deps.Auth.Logger = log
	}

	router := mux.NewRouter()

	// Глобальные middleware
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Metrics)
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	// preflight для любого пути, ответ формирует CORS
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	auth := middleware.Auth(deps.Auth)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth)

	if deps.Orders != nil {
		h := handlers.NewOrderHandler(deps.Orders, log)
		api.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
		api.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
		api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
		api.HandleFunc("/orders/{id}/submit", h.SubmitOrder).Methods(http.MethodPost)
		api.HandleFunc("/orders/{id}/join", h.JoinPool).Methods(http.MethodPost)
		api.HandleFunc("/orders/{id}/leave", h.LeavePool).Methods(http.MethodPost)
		api.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods(http.MethodPatch)
		api.HandleFunc("/orders/{id}/history", h.OrderHistory).Methods(http.MethodGet)
	}

	if deps.Pools != nil {
		h := handlers.NewPoolHandler(deps.Pools, log)
		api.HandleFunc("/pools", h.CreatePoolGroup).Methods(http.MethodPost)
		api.HandleFunc("/pools/{id}", h.GetPoolGroup).Methods(http.MethodGet)
		api.HandleFunc("/pools/{id}/expire", h.ExpirePool).Methods(http.MethodPost)
	}

	if deps.Stats != nil {
		h := handlers.NewStatsHandler(deps.Stats, log)
		api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	}

	if deps.Stream != nil {
		ws := router.PathPrefix("/ws").Subrouter()
		ws.Use(auth)
		ws.Handle("/stream", deps.Stream).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ping(ctx); err != nil {
				log.Warn("health check failed", utils.Err(err))
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}
