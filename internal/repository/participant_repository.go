package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"groupbuy/internal/models"
)

// Ошибки репозитория участников
var (
	ErrParticipantNotFound = errors.New("participant not found")
)

const participantColumns = `id, pool_group_id, order_id, quantity, active, joined_at, left_at`

// ParticipantRepository - работа с таблицей pool_participants.
// Строки не удаляются: выход из пула только снимает active.
type ParticipantRepository struct {
	db querier
}

// NewParticipantRepository создает новый экземпляр репозитория
func NewParticipantRepository(db querier) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	p := &models.Participant{}
	err := row.Scan(&p.ID, &p.PoolGroupID, &p.OrderID, &p.Quantity, &p.Active, &p.JoinedAt, &p.LeftAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create вставляет активного участника.
// Второй активный участник того же заказа даёт ErrConflict (уникальный индекс).
func (r *ParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	query := `
		INSERT INTO pool_participants (id, pool_group_id, order_id, quantity, active, joined_at, left_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query, p.ID, p.PoolGroupID, p.OrderID, p.Quantity, p.Active, p.JoinedAt, p.LeftAt)
	return mapError(err)
}

// GetActiveByOrder активный участник заказа
func (r *ParticipantRepository) GetActiveByOrder(ctx context.Context, orderID string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM pool_participants WHERE order_id = $1 AND active`

	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, mapError(err)
	}
	return p, nil
}

// ListActiveByPool активные участники пула в порядке вступления
func (r *ParticipantRepository) ListActiveByPool(ctx context.Context, poolID string) ([]*models.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM pool_participants
		WHERE pool_group_id = $1 AND active
		ORDER BY joined_at, id`

	rows, err := r.db.QueryContext(ctx, query, poolID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// SumActive сумма количеств активных участников пула (источник current_quantity)
func (r *ParticipantRepository) SumActive(ctx context.Context, poolID string) (int64, error) {
	query := `SELECT COALESCE(SUM(quantity), 0)::bigint FROM pool_participants WHERE pool_group_id = $1 AND active`

	var sum int64
	if err := r.db.QueryRowContext(ctx, query, poolID).Scan(&sum); err != nil {
		return 0, mapError(err)
	}
	return sum, nil
}

// Deactivate снимает участника
func (r *ParticipantRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE pool_participants SET active = FALSE, left_at = $1 WHERE id = $2 AND active`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// DeactivateByPool снимает всех активных участников пула, возвращает их количество
func (r *ParticipantRepository) DeactivateByPool(ctx context.Context, poolID string, at time.Time) (int64, error) {
	query := `UPDATE pool_participants SET active = FALSE, left_at = $1 WHERE pool_group_id = $2 AND active`

	result, err := r.db.ExecContext(ctx, query, at, poolID)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}
