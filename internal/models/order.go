package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus статус заказа покупателя
type OrderStatus string

// Статусы заказа
const (
	OrderStatusDraft      OrderStatus = "DRAFT"
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPooling    OrderStatus = "POOLING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// AllOrderStatuses - закрытое перечисление статусов, в порядке жизненного цикла
var AllOrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusPending,
	OrderStatusPooling,
	OrderStatusProcessing,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// Valid проверяет, что статус входит в перечисление
func (s OrderStatus) Valid() bool {
	for _, st := range AllOrderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// ParseOrderStatus разбирает статус из внешнего ввода (query, body).
// Регистр не важен, неизвестные значения отклоняются.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return s, nil
}

// OrderItem позиция заказа
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"` // в минимальных единицах валюты (копейки, центы)
}

// Subtotal стоимость позиции
func (i OrderItem) Subtotal() int64 {
	return i.Quantity * i.UnitPrice
}

// Order заказ одного покупателя
type Order struct {
	ID          string      `json:"id" db:"id"`
	OwnerID     string      `json:"owner_id" db:"owner_id"`
	Status      OrderStatus `json:"status" db:"status"`
	PoolGroupID *string     `json:"pool_group_id,omitempty" db:"pool_group_id"`
	Items       []OrderItem `json:"items" db:"items"`
	Total       int64       `json:"total" db:"total"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// ComputeTotal пересчитывает сумму заказа по позициям
func (o *Order) ComputeTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Subtotal()
	}
	o.Total = total
	return total
}

// InPool проверяет, привязан ли заказ к пулу
func (o *Order) InPool(poolID string) bool {
	return o.PoolGroupID != nil && *o.PoolGroupID == poolID
}

// Clone возвращает глубокую копию заказа
func (o *Order) Clone() *Order {
	c := *o
	if o.PoolGroupID != nil {
		id := *o.PoolGroupID
		c.PoolGroupID = &id
	}
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}
