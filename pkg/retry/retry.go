// Package retry - ограниченные повторные попытки с экспоненциальным backoff.
//
// Количество попыток всегда конечно: политика применяется к вызовам хранилища,
// а не к бизнес-отказам, поэтому RetryIf обычно пропускает только транзиентные ошибки.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy конфигурация повторов
//
// Экспоненциальный backoff с jitter:
// delay = min(BaseDelay * Multiplier^attempt, MaxDelay) ± jitter
type Policy struct {
	// MaxAttempts - максимальное количество попыток, включая первую (минимум 1)
	MaxAttempts int

	// BaseDelay - задержка перед второй попыткой
	BaseDelay time.Duration

	// MaxDelay - верхняя граница задержки
	MaxDelay time.Duration

	// Multiplier - множитель экспоненциального роста
	Multiplier float64

	// JitterFactor - доля случайной вариации (0.0 - 1.0)
	JitterFactor float64

	// RetryIf решает, повторять ли ошибку. nil = IsRetryable
	RetryIf func(error) bool

	// OnRetry вызывается перед каждым повтором
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy политика по умолчанию для вызовов хранилища:
// 3 попытки, задержки 20ms, 40ms (+ jitter)
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		BaseDelay:    20 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// normalize подставляет значения по умолчанию
func (p *Policy) normalize() {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	if p.JitterFactor > 1 {
		p.JitterFactor = 1
	}
	if p.RetryIf == nil {
		p.RetryIf = IsRetryable
	}
}

// Delay задержка перед повтором номер attempt (0 = перед второй попыткой)
func (p *Policy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		delay += delay * p.JitterFactor * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do выполняет операцию с повторными попытками
//
// Возвращает:
//   - nil: операция успешна
//   - error: ошибка, которую не нужно повторять, или последняя ошибка после MaxAttempts попыток
//
// Пример:
//
//	err := retry.Do(ctx, retry.DefaultPolicy(), func() error {
//	    return store.InTx(ctx, fn)
//	})
func Do(ctx context.Context, p Policy, operation func() error) error {
	_, err := DoWithResult(ctx, p, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}

// DoWithResult выполняет операцию с результатом и повторами
func DoWithResult[T any](ctx context.Context, p Policy, operation func() (T, error)) (T, error) {
	p.normalize()

	var zero T
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.RetryIf(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// ============================================================
// Классификация ошибок
// ============================================================

// RetryableError ошибка, знающая можно ли её повторять
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable true только для ошибок, явно помеченных как повторяемые
// (RetryableError с Retryable() == true или Temporary() == true).
// Ошибки контекста не повторяются никогда.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	type temporary interface {
		Temporary() bool
	}
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return false
}

// PermanentError оборачивает ошибку, которую не нужно повторять
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string   { return e.Err.Error() }
func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// Permanent оборачивает ошибку в PermanentError
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError оборачивает ошибку, которую нужно повторить
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string   { return e.Err.Error() }
func (e *TemporaryError) Unwrap() error   { return e.Err }
func (e *TemporaryError) Retryable() bool { return true }
func (e *TemporaryError) Temporary() bool { return true }

// Temporary оборачивает ошибку в TemporaryError
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}

// ============================================================
// Retryer - политика для многократного использования
// ============================================================

// Retryer хранит политику и применяет её к операциям
//
//	r := retry.NewRetryer(retry.DefaultPolicy())
//	err := r.Do(ctx, operation)
type Retryer struct {
	policy Policy
}

// NewRetryer создаёт Retryer
func NewRetryer(p Policy) *Retryer {
	p.normalize()
	return &Retryer{policy: p}
}

// Do выполняет операцию с повторами
func (r *Retryer) Do(ctx context.Context, operation func() error) error {
	return Do(ctx, r.policy, operation)
}

// Policy текущая политика
func (r *Retryer) Policy() Policy {
	return r.policy
}

// WithOnRetry копия Retryer с callback'ом
func (r *Retryer) WithOnRetry(onRetry func(attempt int, err error, delay time.Duration)) *Retryer {
	p := r.policy
	p.OnRetry = onRetry
	return &Retryer{policy: p}
}

// WithRetryIf копия Retryer с фильтром ошибок
func (r *Retryer) WithRetryIf(retryIf func(error) bool) *Retryer {
	p := r.policy
	p.RetryIf = retryIf
	return &Retryer{policy: p}
}
