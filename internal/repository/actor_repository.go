package repository

import (
	"context"
	"database/sql"
	"errors"

	"groupbuy/internal/models"
)

// Ошибки репозитория участников системы
var (
	ErrActorNotFound = errors.New("actor not found")
	ErrActorExists   = errors.New("actor already exists")
)

// ActorRepository - работа с таблицей actors (покупатели, поставщики, администраторы)
type ActorRepository struct {
	db querier
}

// NewActorRepository создает новый экземпляр репозитория
func NewActorRepository(db querier) *ActorRepository {
	return &ActorRepository{db: db}
}

// Create добавляет актора. Хеш токена вычисляется вызывающим.
func (r *ActorRepository) Create(ctx context.Context, a *models.Actor) error {
	query := `
		INSERT INTO actors (id, role, token_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, a.ID, a.Role, a.TokenHash, a.CreatedAt)
	if err != nil {
		return mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrActorExists
	}
	return nil
}

// GetByID возвращает актора по ID
func (r *ActorRepository) GetByID(ctx context.Context, id string) (*models.Actor, error) {
	query := `SELECT id, role, token_hash, created_at FROM actors WHERE id = $1`

	a := &models.Actor{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Role, &a.TokenHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActorNotFound
		}
		return nil, mapError(err)
	}
	return a, nil
}

// UpdateTokenHash заменяет хеш токена (ротация или перехеширование с новым cost)
func (r *ActorRepository) UpdateTokenHash(ctx context.Context, id, tokenHash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE actors SET token_hash = $1 WHERE id = $2`, tokenHash, id)
	if err != nil {
		return mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrActorNotFound
	}
	return nil
}
