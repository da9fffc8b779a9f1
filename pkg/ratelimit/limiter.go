package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited запрос не может быть допущен в пределах одного интервала
var ErrRateLimited = errors.New("rate limited")

// Interval период пополнения ведра
type Interval string

// Поддерживаемые интервалы
const (
	IntervalSecond Interval = "second"
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
)

// Duration длительность интервала
func (i Interval) Duration() time.Duration {
	switch i {
	case IntervalSecond:
		return time.Second
	case IntervalMinute:
		return time.Minute
	case IntervalHour:
		return time.Hour
	default:
		return 0
	}
}

// Config параметры ведра: tokensPerInterval токенов на каждый интервал.
// Ёмкость ведра равна tokensPerInterval.
type Config struct {
	TokensPerInterval int64    `yaml:"tokens_per_interval" json:"tokens_per_interval"`
	Interval          Interval `yaml:"interval" json:"interval"`
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if c.TokensPerInterval <= 0 {
		return fmt.Errorf("tokens_per_interval must be positive, got %d", c.TokensPerInterval)
	}
	if c.Interval.Duration() == 0 {
		return fmt.Errorf("interval must be second, minute or hour, got %q", c.Interval)
	}
	return nil
}

// TokenBucket - Token Bucket с ленивым пополнением по границам интервала
//
// Алгоритм:
// - Ёмкость ведра = tokensPerInterval, стартуем с полным ведром
// - На каждой границе интервала (выровненной по часам) добавляется tokensPerInterval
// - Пополнение считается при обращении, таймеров нет: простаивающее ведро ничего не стоит
// - Если токенов не хватает, запрос резервирует токены следующего интервала и ждёт его начала
// - Ожидание никогда не превышает одного интервала: то, что не покрывается следующим
//   пополнением, отклоняется с ErrRateLimited
//
// Использование:
//
//	bucket := NewTokenBucket(Config{TokensPerInterval: 5, Interval: IntervalSecond})
//	err := bucket.RemoveTokens(ctx, 1) // блокирующее ожидание
//	if bucket.TryRemoveTokens(1) { ... } // неблокирующая проверка
type TokenBucket struct {
	perInterval int64
	interval    time.Duration
	tokens      int64     // может уйти в минус на величину резерва
	windowStart time.Time // начало текущего интервала
	lastUsed    time.Time
	now         func() time.Time
	mu          sync.Mutex
}

// NewTokenBucket создаёт ведро с полным запасом токенов
func NewTokenBucket(cfg Config) *TokenBucket {
	return newTokenBucket(cfg, time.Now)
}

func newTokenBucket(cfg Config, now func() time.Time) *TokenBucket {
	d := cfg.Interval.Duration()
	if d == 0 {
		d = time.Second
	}
	per := cfg.TokensPerInterval
	if per <= 0 {
		per = 1
	}
	start := now()
	return &TokenBucket{
		perInterval: per,
		interval:    d,
		tokens:      per,
		windowStart: start.Truncate(d),
		lastUsed:    start,
		now:         now,
	}
}

// refill пополняет токены за прошедшие границы интервала
// ВАЖНО: вызывается под lock'ом
func (b *TokenBucket) refill(now time.Time) {
	boundary := now.Truncate(b.interval)
	if !boundary.After(b.windowStart) {
		return
	}

	elapsed := int64(boundary.Sub(b.windowStart) / b.interval)
	b.tokens += elapsed * b.perInterval
	if b.tokens > b.perInterval {
		b.tokens = b.perInterval
	}
	b.windowStart = boundary
}

// reserve списывает n токенов и возвращает время ожидания до их доступности
func (b *TokenBucket) reserve(n int64) (time.Duration, error) {
	if n <= 0 {
		return 0, nil
	}
	if n > b.perInterval {
		return 0, fmt.Errorf("%w: %d tokens requested, bucket holds %d", ErrRateLimited, n, b.perInterval)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refill(now)
	b.lastUsed = now

	if b.tokens >= n {
		b.tokens -= n
		return 0, nil
	}

	// Следующее пополнение должно покрыть резерв целиком
	if b.tokens-n+b.perInterval < 0 {
		return 0, ErrRateLimited
	}

	b.tokens -= n
	return b.windowStart.Add(b.interval).Sub(now), nil
}

// cancel возвращает зарезервированные токены
func (b *TokenBucket) cancel(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.now())
	b.tokens += n
	if b.tokens > b.perInterval {
		b.tokens = b.perInterval
	}
}

// RemoveTokens блокирует до получения n токенов или отмены контекста
//
// Возвращает:
//   - nil: токены получены
//   - ErrRateLimited: не хватит даже следующего пополнения
//   - ctx.Err(): контекст отменён, резерв возвращён в ведро
func (b *TokenBucket) RemoveTokens(ctx context.Context, n int64) error {
	wait, err := b.reserve(n)
	if err != nil {
		return err
	}
	if wait == 0 {
		return nil
	}
	if err := sleep(ctx, wait); err != nil {
		b.cancel(n)
		return err
	}
	return nil
}

// TryRemoveTokens забирает n токенов без ожидания
func (b *TokenBucket) TryRemoveTokens(n int64) bool {
	if n <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refill(now)
	b.lastUsed = now
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// TokensRemaining текущее количество токенов (отрицательное при наличии резерва)
func (b *TokenBucket) TokensRemaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.now())
	return b.tokens
}

// idle ведро полное и не использовалось дольше интервала
func (b *TokenBucket) idle(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	return b.tokens == b.perInterval && now.Sub(b.lastUsed) >= b.interval
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
