package models

import "time"

// PoolStatus статус пула совместной закупки
type PoolStatus string

// Статусы пула
const (
	PoolStatusOpen      PoolStatus = "OPEN"
	PoolStatusFilled    PoolStatus = "FILLED"
	PoolStatusExpired   PoolStatus = "EXPIRED"
	PoolStatusCancelled PoolStatus = "CANCELLED"
)

// AllPoolStatuses - все статусы пула
var AllPoolStatuses = []PoolStatus{
	PoolStatusOpen,
	PoolStatusFilled,
	PoolStatusExpired,
	PoolStatusCancelled,
}

// PoolGroup общая цель закупки для пары товар/поставщик
type PoolGroup struct {
	ID              string     `json:"id" db:"id"`
	ProductID       string     `json:"product_id" db:"product_id"`
	SupplierID      string     `json:"supplier_id" db:"supplier_id"`
	TargetQuantity  int64      `json:"target_quantity" db:"target_quantity"`
	CurrentQuantity int64      `json:"current_quantity" db:"current_quantity"` // сумма активных участников
	Status          PoolStatus `json:"status" db:"status"`
	ExpiresAt       time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Remaining сколько ещё можно добавить до цели
func (p *PoolGroup) Remaining() int64 {
	if p.CurrentQuantity >= p.TargetQuantity {
		return 0
	}
	return p.TargetQuantity - p.CurrentQuantity
}

// IsExpired истёк ли срок пула на момент now
func (p *PoolGroup) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Clone возвращает копию пула
func (p *PoolGroup) Clone() *PoolGroup {
	c := *p
	return &c
}

// Participant вклад одного заказа в пул.
// При выходе запись деактивируется, а не удаляется.
type Participant struct {
	ID          string     `json:"id" db:"id"`
	PoolGroupID string     `json:"pool_group_id" db:"pool_group_id"`
	OrderID     string     `json:"order_id" db:"order_id"`
	Quantity    int64      `json:"quantity" db:"quantity"`
	Active      bool       `json:"active" db:"active"`
	JoinedAt    time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty" db:"left_at"`
}

// SumActive сумма вкладов активных участников
func SumActive(participants []*Participant) int64 {
	var sum int64
	for _, p := range participants {
		if p.Active {
			sum += p.Quantity
		}
	}
	return sum
}
