package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"groupbuy/internal/lifecycle"
	"groupbuy/internal/models"
)

// MaxNoteLength ограничение на комментарий к переходу
const MaxNoteLength = 500

// Границы количеств и сумм заказа. Сумма считается в int64 и не должна переполняться.
const (
	MaxItemQuantity int64 = 1_000_000_000
	MaxOrderTotal   int64 = 1_000_000_000_000_000 // в минимальных единицах валюты
)

// CreateOrder правила создания заказа
func CreateOrder(ownerID string, items []models.OrderItem) *Context {
	c := New()
	if strings.TrimSpace(ownerID) == "" {
		c.Add("owner_id", CodeRequired, "owner is required")
	}
	if len(items) == 0 {
		c.Add("items", CodeRequired, "order must contain at least one item")
	}

	var total int64
	totalOK := true
	for i, item := range items {
		prefix := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.ProductID) == "" {
			c.Add(prefix+".product_id", CodeRequired, "product is required")
		}

		quantityOK := item.Quantity > 0 && item.Quantity <= MaxItemQuantity
		if !quantityOK {
			c.Addf(prefix+".quantity", CodeOutOfRange, "quantity must be between 1 and %d", MaxItemQuantity)
		}
		priceOK := item.UnitPrice >= 0 && item.UnitPrice <= MaxOrderTotal
		if !priceOK {
			c.Addf(prefix+".unit_price", CodeOutOfRange, "unit price must be between 0 and %d", MaxOrderTotal)
		}

		// Деление вместо умножения: quantity*unit_price может переполнить int64
		if !quantityOK || !priceOK || !totalOK {
			continue
		}
		if item.UnitPrice > (MaxOrderTotal-total)/item.Quantity {
			c.Addf("total", CodeOutOfRange, "order total exceeds %d", MaxOrderTotal)
			totalOK = false
			continue
		}
		total += item.Quantity * item.UnitPrice
	}
	return c
}

// SubmitOrder правила DRAFT -> PENDING
func SubmitOrder(order *models.Order) *Context {
	c := New()
	transition(c, order.Status, models.OrderStatusPending)
	if len(order.Items) == 0 {
		c.Add("items", CodeRequired, "order must contain at least one item")
	}
	return c
}

// CreatePool правила создания пула
func CreatePool(productID, supplierID string, target int64, expiresAt, now time.Time) *Context {
	c := New()
	if strings.TrimSpace(productID) == "" {
		c.Add("product_id", CodeRequired, "product is required")
	}
	if strings.TrimSpace(supplierID) == "" {
		c.Add("supplier_id", CodeRequired, "supplier is required")
	}
	if target <= 0 {
		c.Add("target_quantity", CodeOutOfRange, "target quantity must be greater than 0")
	}
	if !expiresAt.After(now) {
		c.Add("expires_at", CodeOutOfRange, "expiry must be in the future")
	}
	return c
}

// JoinInput снимок сущностей для проверки вступления в пул
type JoinInput struct {
	Order    *models.Order
	Pool     *models.PoolGroup
	Active   *models.Participant // активное участие заказа (в любом пуле), nil если нет
	Quantity int64
	Now      time.Time
}

// JoinPool правила вступления заказа в пул.
// Превышение ёмкости проверяется только для положительного количества.
func JoinPool(in JoinInput) *Context {
	c := New()
	if in.Quantity <= 0 {
		c.Add("quantity", CodeOutOfRange, "quantity must be greater than 0")
	}

	transition(c, in.Order.Status, models.OrderStatusPooling)
	if in.Active != nil {
		c.Addf("order_id", CodeDuplicate, "order already participates in pool %s", in.Active.PoolGroupID)
	}

	if in.Pool.Status != models.PoolStatusOpen {
		c.Addf("pool_group_id", CodePoolClosed, "pool is %s", in.Pool.Status)
	}
	if in.Pool.IsExpired(in.Now) {
		c.Add("expires_at", CodePoolExpired, "pool expired")
	}

	if in.Quantity > 0 && in.Quantity > in.Pool.Remaining() {
		c.Addf("quantity", CodeCapacityExceeded,
			"quantity exceeds remaining capacity (remaining %d)", in.Pool.Remaining())
	}
	return c
}

// LeavePool правила выхода из пула
func LeavePool(order *models.Order, participant *models.Participant, pool *models.PoolGroup) *Context {
	c := New()
	if order.Status != models.OrderStatusPooling {
		c.Addf("status", CodeInvalidTransition, "order is %s, not in a pool", order.Status)
	}
	if participant == nil || !participant.Active {
		c.Add("order_id", CodeNotParticipant, "order has no active pool participation")
	}
	if pool != nil && pool.Status != models.PoolStatusOpen {
		c.Addf("pool_group_id", CodePoolClosed, "pool is %s", pool.Status)
	}
	return c
}

// StatusUpdateInput снимок для произвольного перехода
type StatusUpdateInput struct {
	Order *models.Order
	To    models.OrderStatus
	Pool  *models.PoolGroup // пул заказа, если есть
	Note  string
}

// UpdateStatus правила произвольного перехода.
// В POOLING заказ попадает только через вступление в пул.
func UpdateStatus(in StatusUpdateInput) *Context {
	c := New()
	if !in.To.Valid() {
		c.Addf("status", CodeUnknownValue, "unknown status %q", in.To)
	} else {
		transition(c, in.Order.Status, in.To)
		if in.To == models.OrderStatusPooling {
			c.Add("pool_group_id", CodeRequired, "orders enter POOLING only by joining a pool")
		}
	}
	if in.Order.Status == models.OrderStatusPooling && in.To == models.OrderStatusCancelled &&
		in.Pool != nil && in.Pool.Status != models.PoolStatusOpen {
		c.Addf("pool_group_id", CodePoolClosed, "pool is %s", in.Pool.Status)
	}
	if len(in.Note) > MaxNoteLength {
		c.Addf("note", CodeOutOfRange, "note must be at most %d characters", MaxNoteLength)
	}
	return c
}

// ExpirePool правила истечения пула
func ExpirePool(pool *models.PoolGroup, now time.Time) *Context {
	c := New()
	if pool.Status != models.PoolStatusOpen {
		c.Addf("status", CodePoolClosed, "pool is %s", pool.Status)
	}
	if !pool.IsExpired(now) {
		c.Addf("expires_at", CodeOutOfRange, "pool expires at %s", pool.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return c
}

// RawOrderFilter фильтр в том виде, как он пришёл снаружи
type RawOrderFilter struct {
	UserID      string
	SupplierID  string
	Status      string
	PoolGroupID string
	Page        string
	Limit       string
}

// OrderFilter разбирает фильтр выборки. Статус - закрытое перечисление.
func OrderFilter(raw RawOrderFilter) (models.OrderFilter, *Context) {
	c := New()
	f := models.OrderFilter{}

	if raw.UserID != "" {
		f.UserID = &raw.UserID
	}
	if raw.SupplierID != "" {
		f.SupplierID = &raw.SupplierID
	}
	if raw.PoolGroupID != "" {
		f.PoolGroupID = &raw.PoolGroupID
	}
	if raw.Status != "" {
		status, err := models.ParseOrderStatus(raw.Status)
		if err != nil {
			c.Addf("status", CodeUnknownValue, "unknown status %q", raw.Status)
		} else {
			f.Status = &status
		}
	}

	f.Page = parsePositive(c, "page", raw.Page, 1, 0)
	f.Limit = parsePositive(c, "limit", raw.Limit, models.DefaultPageLimit, models.MaxPageLimit)
	return f, c
}

// Pagination проверяет уже числовые page/limit
func Pagination(f models.OrderFilter) *Context {
	c := New()
	if f.Page < 1 {
		c.Add("page", CodeOutOfRange, "page must be at least 1")
	}
	if f.Limit < 1 || f.Limit > models.MaxPageLimit {
		c.Addf("limit", CodeOutOfRange, "limit must be between 1 and %d", models.MaxPageLimit)
	}
	if f.Status != nil && !f.Status.Valid() {
		c.Addf("status", CodeUnknownValue, "unknown status %q", *f.Status)
	}
	return c
}

func parsePositive(c *Context, field, raw string, def, max int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		c.Addf(field, CodeOutOfRange, "%s must be a positive integer", field)
		return def
	}
	if max > 0 && v > max {
		c.Addf(field, CodeOutOfRange, "%s must be at most %d", field, max)
		return def
	}
	return v
}

func transition(c *Context, from, to models.OrderStatus) {
	err := lifecycle.Check(from, to)
	var te *lifecycle.TransitionError
	if errors.As(err, &te) {
		c.Addf("status", CodeInvalidTransition, "cannot move order from %s to %s", te.From, te.To)
	}
}
