package repository

import (
	"context"

	"github.com/google/uuid"

	"groupbuy/internal/models"
)

// HistoryRepository - журнал переходов заказов (таблица order_history).
// Только вставка и чтение: записи не изменяются и не удаляются.
type HistoryRepository struct {
	db querier
}

// NewHistoryRepository создает новый экземпляр репозитория
func NewHistoryRepository(db querier) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append добавляет запись журнала
func (r *HistoryRepository) Append(ctx context.Context, e *models.OrderHistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query := `
		INSERT INTO order_history (id, order_id, from_status, to_status, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query, e.ID, e.OrderID, e.FromStatus, e.ToStatus, e.ActorID, e.Note, e.Timestamp)
	return mapError(err)
}

// ListByOrder записи заказа в хронологическом порядке
func (r *HistoryRepository) ListByOrder(ctx context.Context, orderID string) ([]*models.OrderHistoryEntry, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return []*models.OrderHistoryEntry{}, nil
	}

	query := `
		SELECT id, order_id, from_status, to_status, actor_id, note, created_at
		FROM order_history
		WHERE order_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	entries := []*models.OrderHistoryEntry{}
	for rows.Next() {
		e := &models.OrderHistoryEntry{}
		if err := rows.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorID, &e.Note, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOrder число записей журнала заказа
func (r *HistoryRepository) CountByOrder(ctx context.Context, orderID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_history WHERE order_id = $1`, orderID).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}
