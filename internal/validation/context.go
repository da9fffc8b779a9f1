// Package validation проверяет предлагаемые изменения по бизнес-правилам.
//
// Все правила вычисляются полностью, без раннего выхода: вызывающий видит
// сразу все нарушения. IsValid выводится из списка ошибок и не задаётся напрямую.
package validation

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Коды нарушений (машиночитаемые, для маппинга в ошибки сервиса)
const (
	CodeRequired          = "required"
	CodeOutOfRange        = "out_of_range"
	CodeUnknownValue      = "unknown_value"
	CodeInvalidTransition = "invalid_transition"
	CodeCapacityExceeded  = "capacity_exceeded"
	CodePoolClosed        = "pool_closed"
	CodePoolExpired       = "pool_expired"
	CodeDuplicate         = "duplicate"
	CodeNotParticipant    = "not_participant"
)

// ValidationError одно нарушение правила
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e ValidationError) String() string {
	return e.Field + ": " + e.Message
}

// Context упорядоченный список нарушений
type Context struct {
	errors []ValidationError
}

// New создает пустой контекст
func New() *Context {
	return &Context{}
}

// Add добавляет нарушение
func (c *Context) Add(field, code, message string) {
	c.errors = append(c.errors, ValidationError{Field: field, Message: message, Code: code})
}

// Addf добавляет нарушение с форматированием
func (c *Context) Addf(field, code, format string, args ...interface{}) {
	c.Add(field, code, fmt.Sprintf(format, args...))
}

// Merge дописывает нарушения другого контекста в конец
func (c *Context) Merge(other *Context) {
	if other == nil {
		return
	}
	c.errors = append(c.errors, other.errors...)
}

// IsValid true когда нарушений нет
func (c *Context) IsValid() bool {
	return c == nil || len(c.errors) == 0
}

// Errors копия списка нарушений
func (c *Context) Errors() []ValidationError {
	if c == nil {
		return nil
	}
	out := make([]ValidationError, len(c.errors))
	copy(out, c.errors)
	return out
}

// Has есть ли нарушение с данным кодом
func (c *Context) Has(code string) bool {
	if c == nil {
		return false
	}
	for _, e := range c.errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Error собирает все нарушения в одну строку
func (c *Context) Error() string {
	parts := make([]string, 0, len(c.errors))
	for _, e := range c.errors {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}

// MarshalJSON {"errors": [...], "is_valid": bool}
func (c *Context) MarshalJSON() ([]byte, error) {
	errs := c.Errors()
	if errs == nil {
		errs = []ValidationError{}
	}
	return json.Marshal(struct {
		Errors  []ValidationError `json:"errors"`
		IsValid bool              `json:"is_valid"`
	}{errs, c.IsValid()})
}
