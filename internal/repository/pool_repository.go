package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"groupbuy/internal/models"
)

// Ошибки репозитория пулов
var (
	ErrPoolNotFound = errors.New("pool group not found")
)

const poolColumns = `id, product_id, supplier_id, target_quantity, current_quantity, status, expires_at, created_at, updated_at`

// PoolRepository - работа с таблицей pool_groups
type PoolRepository struct {
	db querier
}

// NewPoolRepository создает новый экземпляр репозитория
func NewPoolRepository(db querier) *PoolRepository {
	return &PoolRepository{db: db}
}

func scanPool(row rowScanner) (*models.PoolGroup, error) {
	pool := &models.PoolGroup{}
	err := row.Scan(
		&pool.ID,
		&pool.ProductID,
		&pool.SupplierID,
		&pool.TargetQuantity,
		&pool.CurrentQuantity,
		&pool.Status,
		&pool.ExpiresAt,
		&pool.CreatedAt,
		&pool.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Create вставляет пул
func (r *PoolRepository) Create(ctx context.Context, pool *models.PoolGroup) error {
	if pool.ID == "" {
		pool.ID = uuid.NewString()
	}

	query := `
		INSERT INTO pool_groups (id, product_id, supplier_id, target_quantity, current_quantity, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		pool.ID,
		pool.ProductID,
		pool.SupplierID,
		pool.TargetQuantity,
		pool.CurrentQuantity,
		pool.Status,
		pool.ExpiresAt,
		pool.CreatedAt,
		pool.UpdatedAt,
	)
	return mapError(err)
}

// GetByID возвращает пул по ID
func (r *PoolRepository) GetByID(ctx context.Context, id string) (*models.PoolGroup, error) {
	return r.get(ctx, `SELECT `+poolColumns+` FROM pool_groups WHERE id = $1`, id)
}

// GetByIDForUpdate возвращает пул и блокирует строку: все изменения пула сериализуются на ней
func (r *PoolRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.PoolGroup, error) {
	return r.get(ctx, `SELECT `+poolColumns+` FROM pool_groups WHERE id = $1 FOR UPDATE`, id)
}

func (r *PoolRepository) get(ctx context.Context, query, id string) (*models.PoolGroup, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPoolNotFound
	}

	pool, err := scanPool(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, mapError(err)
	}
	return pool, nil
}

// Update сохраняет статус и текущий объём
func (r *PoolRepository) Update(ctx context.Context, pool *models.PoolGroup) error {
	query := `
		UPDATE pool_groups
		SET current_quantity = $1, status = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, pool.CurrentQuantity, pool.Status, pool.UpdatedAt, pool.ID)
	if err != nil {
		return mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPoolNotFound
	}
	return nil
}

// ListExpiredOpen ID открытых пулов с истёкшим сроком (expires_at <= now), старые первыми
func (r *PoolRepository) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT id FROM pool_groups
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, models.PoolStatusOpen, now, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByStatus количество пулов по статусам
func (r *PoolRepository) CountByStatus(ctx context.Context) (map[models.PoolStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pool_groups GROUP BY status`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	counts := make(map[models.PoolStatus]int, len(models.AllPoolStatuses))
	for rows.Next() {
		var status models.PoolStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
