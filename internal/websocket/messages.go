package websocket

import (
	"time"

	"groupbuy/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderTransition - зафиксированный переход статуса заказа
	MessageTypeOrderTransition MessageType = "orderTransition"

	// MessageTypePoolUpdate - новое состояние пула (объём, статус)
	MessageTypePoolUpdate MessageType = "poolUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// TransitionMessage - сообщение о переходе заказа
type TransitionMessage struct {
	BaseMessage
	Data models.TransitionEvent `json:"data"`
}

// PoolUpdateMessage - сообщение об изменении пула
type PoolUpdateMessage struct {
	BaseMessage
	Data *PoolUpdateData `json:"data"`
}

// PoolUpdateData - снимок пула для frontend
type PoolUpdateData struct {
	ID              string            `json:"id"`
	ProductID       string            `json:"product_id"`
	SupplierID      string            `json:"supplier_id"`
	TargetQuantity  int64             `json:"target_quantity"`
	CurrentQuantity int64             `json:"current_quantity"`
	Remaining       int64             `json:"remaining"`
	Status          models.PoolStatus `json:"status"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// NewTransitionMessage создает сообщение перехода
func NewTransitionMessage(ev models.TransitionEvent, now time.Time) *TransitionMessage {
	return &TransitionMessage{
		BaseMessage: BaseMessage{Type: MessageTypeOrderTransition, Timestamp: now},
		Data:        ev,
	}
}

// NewPoolUpdateMessage создает сообщение об изменении пула
func NewPoolUpdateMessage(pool *models.PoolGroup, now time.Time) *PoolUpdateMessage {
	return &PoolUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypePoolUpdate, Timestamp: now},
		Data: &PoolUpdateData{
			ID:              pool.ID,
			ProductID:       pool.ProductID,
			SupplierID:      pool.SupplierID,
			TargetQuantity:  pool.TargetQuantity,
			CurrentQuantity: pool.CurrentQuantity,
			Remaining:       pool.Remaining(),
			Status:          pool.Status,
			ExpiresAt:       pool.ExpiresAt,
		},
	}
}
