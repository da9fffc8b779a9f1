package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"groupbuy/pkg/utils"
)

// DefaultSweepInterval период проверки истёкших пулов
const DefaultSweepInterval = 30 * time.Second

// ExpirySweeper периодически истекает открытые пулы с прошедшим сроком
type ExpirySweeper struct {
	engine   *Engine
	interval time.Duration
	log      *utils.Logger
}

// NewExpirySweeper создает sweeper, interval <= 0 = DefaultSweepInterval
func NewExpirySweeper(engine *Engine, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &ExpirySweeper{
		engine:   engine,
		interval: interval,
		log:      engine.base.WithComponent("expiry_sweeper"),
	}
}

// Run блокируется до отмены ctx. Ошибка прохода логируется, цикл продолжается.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("expiry sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	n, err := s.engine.ExpireDue(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Error("expiry sweep failed", zap.Int("expired", n), utils.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("expired pools", zap.Int("expired", n))
	}
}
