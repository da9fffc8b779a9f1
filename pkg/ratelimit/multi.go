package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Endpoint класс эндпоинта, для которого задан отдельный лимит
type Endpoint string

// Чувствительные эндпоинты
const (
	EndpointLogin             Endpoint = "login"
	EndpointRegistration      Endpoint = "registration"
	EndpointPasswordReset     Endpoint = "password-reset"
	EndpointEmailVerification Endpoint = "email-verification"
	EndpointPoolJoin          Endpoint = "pool-join"
)

// DefaultConfigs лимиты по умолчанию
func DefaultConfigs() map[Endpoint]Config {
	return map[Endpoint]Config{
		EndpointLogin:             {TokensPerInterval: 5, Interval: IntervalMinute},
		EndpointRegistration:      {TokensPerInterval: 3, Interval: IntervalHour},
		EndpointPasswordReset:     {TokensPerInterval: 3, Interval: IntervalHour},
		EndpointEmailVerification: {TokensPerInterval: 5, Interval: IntervalHour},
		EndpointPoolJoin:          {TokensPerInterval: 5, Interval: IntervalSecond},
	}
}

// Limiter - token bucket на пару (клиент, класс эндпоинта)
//
// Неизвестные (не сконфигурированные) эндпоинты не ограничиваются.
type Limiter struct {
	configs map[Endpoint]Config
	backend Backend
	mu      sync.RWMutex
}

// NewLimiter создаёт лимитер поверх backend. nil backend = память процесса.
func NewLimiter(backend Backend, configs map[Endpoint]Config) *Limiter {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	l := &Limiter{
		configs: make(map[Endpoint]Config, len(configs)),
		backend: backend,
	}
	for endpoint, cfg := range configs {
		l.configs[endpoint] = cfg
	}
	return l
}

// Configure задаёт лимит для класса эндпоинта
func (l *Limiter) Configure(endpoint Endpoint, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[endpoint] = cfg
	return nil
}

// Config возвращает лимит для класса эндпоинта
func (l *Limiter) Config(endpoint Endpoint) (Config, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg, ok := l.configs[endpoint]
	return cfg, ok
}

// RemoveTokens забирает n токенов из ведра (client, endpoint), ожидая не дольше одного интервала
func (l *Limiter) RemoveTokens(ctx context.Context, endpoint Endpoint, client string, n int64) error {
	cfg, ok := l.Config(endpoint)
	if !ok {
		return nil // нет лимита для этого эндпоинта
	}

	key := Key(endpoint, client)
	start := time.Now()

	wait, err := l.backend.Reserve(ctx, key, cfg, n)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			rejectedTotal.WithLabelValues(string(endpoint)).Inc()
		}
		return err
	}

	if wait > 0 {
		delayedTotal.WithLabelValues(string(endpoint)).Inc()
		if err := sleep(ctx, wait); err != nil {
			// ctx может быть уже отменён, возврат токенов не должен от него зависеть
			_ = l.backend.Cancel(context.Background(), key, cfg, n)
			return err
		}
	}

	waitSeconds.WithLabelValues(string(endpoint)).Observe(time.Since(start).Seconds())
	return nil
}

// Wait забирает один токен
func (l *Limiter) Wait(ctx context.Context, endpoint Endpoint, client string) error {
	return l.RemoveTokens(ctx, endpoint, client, 1)
}

// RunPruner периодически удаляет простаивающие вёдра памяти процесса.
// Для других backend'ов сразу возвращает nil.
func (l *Limiter) RunPruner(ctx context.Context, every time.Duration) error {
	mem, ok := l.backend.(*MemoryBackend)
	if !ok || every <= 0 {
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			mem.Prune()
		}
	}
}

// Key ключ ведра
func Key(endpoint Endpoint, client string) string {
	return "ratelimit:" + string(endpoint) + ":" + client
}
