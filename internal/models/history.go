package models

import "time"

// OrderHistoryEntry неизменяемая запись о переходе статуса заказа
type OrderHistoryEntry struct {
	ID         string      `json:"id" db:"id"`
	OrderID    string      `json:"order_id" db:"order_id"`
	FromStatus OrderStatus `json:"from_status" db:"from_status"`
	ToStatus   OrderStatus `json:"to_status" db:"to_status"`
	ActorID    string      `json:"actor_id" db:"actor_id"`
	Note       string      `json:"note,omitempty" db:"note"`
	Timestamp  time.Time   `json:"timestamp" db:"created_at"`
}

// TransitionEvent событие о закоммиченном переходе, уходит наружу (websocket, kafka)
type TransitionEvent struct {
	OrderID     string      `json:"order_id"`
	FromStatus  OrderStatus `json:"from_status"`
	ToStatus    OrderStatus `json:"to_status"`
	PoolGroupID string      `json:"pool_group_id,omitempty"`
	ActorID     string      `json:"actor_id,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// EventFromEntry строит событие по записи истории
func EventFromEntry(e *OrderHistoryEntry, poolGroupID *string) TransitionEvent {
	ev := TransitionEvent{
		OrderID:    e.OrderID,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		ActorID:    e.ActorID,
		OccurredAt: e.Timestamp,
	}
	if poolGroupID != nil {
		ev.PoolGroupID = *poolGroupID
	}
	return ev
}
