package repository

import (
	"context"

	"groupbuy/internal/models"
)

// StatsRepository - агрегаты по заказам и пулам для /stats
type StatsRepository struct {
	db querier
}

// NewStatsRepository создает новый экземпляр репозитория
func NewStatsRepository(db querier) *StatsRepository {
	return &StatsRepository{db: db}
}

// Get счётчики по статусам и суммарный набранный объём открытых пулов
func (r *StatsRepository) Get(ctx context.Context) (*models.Stats, error) {
	orders, err := NewOrderRepository(r.db).CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	pools, err := NewPoolRepository(r.db).CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	var open int64
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(current_quantity), 0)::bigint FROM pool_groups WHERE status = $1`,
		models.PoolStatusOpen,
	).Scan(&open)
	if err != nil {
		return nil, mapError(err)
	}

	return &models.Stats{OrdersByStatus: orders, PoolsByStatus: pools, OpenQuantity: open}, nil
}
