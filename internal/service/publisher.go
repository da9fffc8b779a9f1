package service

import (
	"context"
	"errors"

	"groupbuy/internal/models"
)

// MultiPublisher рассылает события всем получателям.
// Ошибка одного получателя не мешает остальным.
type MultiPublisher struct {
	publishers []EventPublisher
}

// NewMultiPublisher создает publisher, nil-получатели пропускаются
func NewMultiPublisher(publishers ...EventPublisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

func (m *MultiPublisher) PublishTransition(ctx context.Context, ev models.TransitionEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.PublishTransition(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) PublishPool(ctx context.Context, pool *models.PoolGroup) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.PublishPool(ctx, pool); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopPublisher отбрасывает события
type NopPublisher struct{}

func (NopPublisher) PublishTransition(context.Context, models.TransitionEvent) error { return nil }
func (NopPublisher) PublishPool(context.Context, *models.PoolGroup) error { return nil }
