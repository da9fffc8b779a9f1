package service

import (
	"context"
	"time"

	"groupbuy/internal/models"
	"groupbuy/pkg/ratelimit"
)

// OrderRepository определяет интерфейс репозитория заказов
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	UpdateStatusBulk(ctx context.Context, ids []string, status models.OrderStatus, at time.Time) (int64, error)
	List(ctx context.Context, f models.OrderFilter) ([]*models.Order, int, error)
}

// PoolRepository определяет интерфейс репозитория пулов
type PoolRepository interface {
	Create(ctx context.Context, pool *models.PoolGroup) error
	GetByID(ctx context.Context, id string) (*models.PoolGroup, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.PoolGroup, error)
	Update(ctx context.Context, pool *models.PoolGroup) error
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// ParticipantRepository определяет интерфейс репозитория участников пула
type ParticipantRepository interface {
	Create(ctx context.Context, p *models.Participant) error
	GetActiveByOrder(ctx context.Context, orderID string) (*models.Participant, error)
	ListActiveByPool(ctx context.Context, poolID string) ([]*models.Participant, error)
	SumActive(ctx context.Context, poolID string) (int64, error)
	Deactivate(ctx context.Context, id string, at time.Time) error
	DeactivateByPool(ctx context.Context, poolID string, at time.Time) (int64, error)
}

// HistoryRepository определяет интерфейс журнала переходов
type HistoryRepository interface {
	Append(ctx context.Context, e *models.OrderHistoryEntry) error
	ListByOrder(ctx context.Context, orderID string) ([]*models.OrderHistoryEntry, error)
}

// StatsRepository определяет интерфейс агрегатов
type StatsRepository interface {
	Get(ctx context.Context) (*models.Stats, error)
}

// Repositories набор репозиториев одной единицы работы
type Repositories struct {
	Orders       OrderRepository
	Pools        PoolRepository
	Participants ParticipantRepository
	History      HistoryRepository
	Stats        StatsRepository
}

// Store хранилище: чтение без транзакции и атомарные единицы работы.
// Ошибка fn откатывает все изменения.
type Store interface {
	Repositories() Repositories
	InTx(ctx context.Context, fn func(Repositories) error) error
}

// Clock источник времени
type Clock interface {
	Now() time.Time
}

// SystemClock реальное время в UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Identity определяет действующего пользователя запроса
type Identity interface {
	// ActorID ID актора из контекста, "" если запрос анонимный
	ActorID(ctx context.Context) string
	// Actor актор с ролью для проверки прав, nil если запрос анонимный
	Actor(ctx context.Context) *models.Actor
	// ClientKey ключ для admission control: ID актора или адрес клиента
	ClientKey(ctx context.Context) string
}

// EventPublisher получает события переходов после фиксации транзакции
type EventPublisher interface {
	PublishTransition(ctx context.Context, ev models.TransitionEvent) error
	PublishPool(ctx context.Context, pool *models.PoolGroup) error
}

// Admission admission control по (клиент, класс эндпоинта)
type Admission interface {
	RemoveTokens(ctx context.Context, endpoint ratelimit.Endpoint, client string, n int64) error
}

// anonymous Identity по умолчанию
type anonymous struct{}

func (anonymous) ActorID(context.Context) string      { return "" }
func (anonymous) Actor(context.Context) *models.Actor { return nil }
func (anonymous) ClientKey(context.Context) string    { return "anonymous" }
