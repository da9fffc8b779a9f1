package service

import (
	"context"

	"groupbuy/internal/repository"
)

// SQLStore адаптер repository.Store к Store
type SQLStore struct {
	store *repository.Store
}

// NewSQLStore создает адаптер
func NewSQLStore(store *repository.Store) *SQLStore {
	return &SQLStore{store: store}
}

func fromRepos(r repository.Repos) Repositories {
	return Repositories{
		Orders:       r.Orders,
		Pools:        r.Pools,
		Participants: r.Participants,
		History:      r.History,
		Stats:        r.Stats,
	}
}

func (s *SQLStore) Repositories() Repositories {
	return fromRepos(s.store.Repos)
}

func (s *SQLStore) InTx(ctx context.Context, fn func(Repositories) error) error {
	return s.store.InTx(ctx, func(r repository.Repos) error {
		return fn(fromRepos(r))
	})
}
