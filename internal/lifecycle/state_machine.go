// Package lifecycle владеет графом допустимых переходов статуса заказа.
package lifecycle

import (
	"errors"
	"fmt"

	"groupbuy/internal/models"
)

// ErrInvalidTransition переход отсутствует в таблице
var ErrInvalidTransition = errors.New("invalid transition")

// ValidTransitions определяет допустимые переходы между статусами заказа
var ValidTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusDraft:      {models.OrderStatusPending, models.OrderStatusCancelled},
	models.OrderStatusPending:    {models.OrderStatusPooling, models.OrderStatusCancelled},
	models.OrderStatusPooling:    {models.OrderStatusProcessing, models.OrderStatusCancelled}, // PROCESSING при заполнении пула
	models.OrderStatusProcessing: {models.OrderStatusCompleted},                               // подтверждение поставки
	models.OrderStatusCompleted:  {},
	models.OrderStatusCancelled:  {},
}

// TransitionError попытка недопустимого перехода
type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// Unwrap позволяет матчить через errors.Is(err, ErrInvalidTransition)
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.OrderStatus) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Check возвращает *TransitionError для недопустимого ребра
func Check(from, to models.OrderStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Transition описание применённого перехода, из него строится запись истории
type Transition struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
	ActorID string
	Note    string
}

// Apply переводит заказ в новый статус, если ребро допустимо.
// Заказ без pool_group_id не может оказаться в POOLING.
// При ошибке заказ не изменяется.
func Apply(order *models.Order, to models.OrderStatus, actorID, note string) (*Transition, error) {
	if err := Check(order.Status, to); err != nil {
		return nil, err
	}
	if to == models.OrderStatusPooling && order.PoolGroupID == nil {
		return nil, fmt.Errorf("%w: order %s has no pool group", ErrInvalidTransition, order.ID)
	}

	tr := &Transition{
		OrderID: order.ID,
		From:    order.Status,
		To:      to,
		ActorID: actorID,
		Note:    note,
	}
	order.Status = to
	return tr, nil
}

// IsTerminal статус без исходящих переходов
func IsTerminal(s models.OrderStatus) bool {
	return s == models.OrderStatusCompleted || s == models.OrderStatusCancelled
}

// IsCancellable можно ли отменить заказ из этого статуса
func IsCancellable(s models.OrderStatus) bool {
	return CanTransition(s, models.OrderStatusCancelled)
}

// StateInfo возвращает описание статуса для UI
func StateInfo(s models.OrderStatus) string {
	switch s {
	case models.OrderStatusDraft:
		return "Черновик заказа"
	case models.OrderStatusPending:
		return "Заказ оформлен, ожидает пула"
	case models.OrderStatusPooling:
		return "Заказ участвует в совместной закупке"
	case models.OrderStatusProcessing:
		return "Пул собран, заказ в обработке"
	case models.OrderStatusCompleted:
		return "Заказ выполнен"
	case models.OrderStatusCancelled:
		return "Заказ отменён"
	default:
		return "Неизвестный статус"
	}
}
