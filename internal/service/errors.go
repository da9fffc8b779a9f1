package service

import (
	"errors"
	"fmt"

	"groupbuy/internal/lifecycle"
	"groupbuy/internal/repository"
	"groupbuy/internal/validation"
	"groupbuy/pkg/ratelimit"
)

// Ошибки движка. Сопоставляются через errors.Is.
var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrCapacityExceeded  = errors.New("pool capacity exceeded")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("concurrent modification, retry")
	ErrForbidden         = errors.New("forbidden")
	ErrRateLimited       = ratelimit.ErrRateLimited
)

// ValidationFailedError отказ с полным списком нарушенных правил.
// Разворачивается в ErrValidationFailed и, если есть, в ErrInvalidTransition / ErrCapacityExceeded.
type ValidationFailedError struct {
	Context *validation.Context
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidationFailed, e.Context.Error())
}

func (e *ValidationFailedError) Unwrap() []error {
	errs := []error{ErrValidationFailed}
	if e.Context.Has(validation.CodeInvalidTransition) {
		errs = append(errs, ErrInvalidTransition)
	}
	if e.Context.Has(validation.CodeCapacityExceeded) {
		errs = append(errs, ErrCapacityExceeded)
	}
	return errs
}

// Validation возвращает контекст валидации из цепочки ошибок
func Validation(err error) (*validation.Context, bool) {
	var vf *ValidationFailedError
	if errors.As(err, &vf) {
		return vf.Context, true
	}
	return nil, false
}

// failed nil для валидного контекста, иначе *ValidationFailedError
func failed(c *validation.Context) error {
	if c.IsValid() {
		return nil
	}
	return &ValidationFailedError{Context: c}
}

// translate переводит ошибки хранилища в ошибки движка
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrPoolNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case repository.IsRetryable(err):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// retryable повторяются только конфликты хранилища
func retryable(err error) bool {
	return errors.Is(err, ErrConflict) || repository.IsRetryable(err)
}
