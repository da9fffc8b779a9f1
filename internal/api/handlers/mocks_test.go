package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"groupbuy/internal/identity"
	"groupbuy/internal/lifecycle"
	"groupbuy/internal/models"
	"groupbuy/internal/service"
	"groupbuy/internal/validation"
)

// ErrMockDatabase ошибка хранилища для тестов
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Engine ============

// MockEngine мок для OrderService, PoolService и StatsService
type MockEngine struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	pools  map[string]*models.PoolGroup
	errs   map[string]error
	nextID int

	// последние аргументы вызовов
	lastFilter   models.OrderFilter
	lastActor    string
	lastNote     string
	lastQuantity int64
	lastOwner    string
}

// NewMockEngine создает пустой мок
func NewMockEngine() *MockEngine {
	return &MockEngine{
		orders: make(map[string]*models.Order),
		pools:  make(map[string]*models.PoolGroup),
		errs:   make(map[string]error),
		nextID: 1,
	}
}

// SetError задает ошибку для операции
func (m *MockEngine) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

// PutOrder кладет заказ
func (m *MockEngine) PutOrder(o *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// PutPool кладет пул
func (m *MockEngine) PutPool(p *models.PoolGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.ID] = p
}

func (m *MockEngine) id(prefix string) string {
	id := fmt.Sprintf("%s-%d", prefix, m.nextID)
	m.nextID++
	return id
}

func (m *MockEngine) order(id string) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", service.ErrNotFound, id)
	}
	return o, nil
}

// authorize применяет ту же политику доступа, что и движок
func (m *MockEngine) authorize(ctx context.Context, o *models.Order, to models.OrderStatus) error {
	actor, _ := identity.ActorFrom(ctx)
	var pool *models.PoolGroup
	if o.PoolGroupID != nil {
		pool = m.pools[*o.PoolGroupID]
	}
	return service.Authorize(actor, o, pool, to)
}

func (m *MockEngine) transition(o *models.Order, to models.OrderStatus) error {
	if err := lifecycle.Check(o.Status, to); err != nil {
		vc := validation.New()
		vc.Addf("status", validation.CodeInvalidTransition, "cannot move order from %s to %s", o.Status, to)
		return &service.ValidationFailedError{Context: vc}
	}
	o.Status = to
	return nil
}

func (m *MockEngine) CreateOrder(ctx context.Context, ownerID string, items []models.OrderItem) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOwner = ownerID
	if err := m.errs["create_order"]; err != nil {
		return nil, err
	}
	vc := validation.CreateOrder(ownerID, items)
	if !vc.IsValid() {
		return nil, &service.ValidationFailedError{Context: vc}
	}
	o := &models.Order{ID: m.id("order"), OwnerID: ownerID, Status: models.OrderStatusDraft, Items: items}
	o.ComputeTotal()
	m.orders[o.ID] = o
	return o, nil
}

func (m *MockEngine) SubmitOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["submit_order"]; err != nil {
		return nil, err
	}
	o, err := m.order(orderID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, o, models.OrderStatusPending); err != nil {
		return nil, err
	}
	if err := m.transition(o, models.OrderStatusPending); err != nil {
		return nil, err
	}
	return o, nil
}

func (m *MockEngine) UpdateOrderStatus(ctx context.Context, orderID string, to models.OrderStatus, actorID, note string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActor, m.lastNote = actorID, note
	if err := m.errs["update_status"]; err != nil {
		return nil, err
	}
	o, err := m.order(orderID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, o, to); err != nil {
		return nil, err
	}
	if err := m.transition(o, to); err != nil {
		return nil, err
	}
	return o, nil
}

func (m *MockEngine) JoinPool(ctx context.Context, orderID, poolID string, quantity int64) (*service.JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuantity = quantity
	if err := m.errs["join_pool"]; err != nil {
		return nil, err
	}
	o, err := m.order(orderID)
	if err != nil {
		return nil, err
	}
	p, ok := m.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: pool %s", service.ErrNotFound, poolID)
	}
	if err := m.authorize(ctx, o, models.OrderStatusPooling); err != nil {
		return nil, err
	}
	if quantity > p.Remaining() {
		vc := validation.New()
		vc.Addf("quantity", validation.CodeCapacityExceeded, "quantity %d exceeds remaining capacity %d", quantity, p.Remaining())
		return nil, &service.ValidationFailedError{Context: vc}
	}
	if err := m.transition(o, models.OrderStatusPooling); err != nil {
		return nil, err
	}
	o.PoolGroupID = &p.ID
	p.CurrentQuantity += quantity
	filled := p.CurrentQuantity == p.TargetQuantity
	if filled {
		p.Status = models.PoolStatusFilled
		o.Status = models.OrderStatusProcessing
	}
	return &service.JoinResult{Order: o, Pool: p, Filled: filled}, nil
}

func (m *MockEngine) LeavePool(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["leave_pool"]; err != nil {
		return nil, err
	}
	o, err := m.order(orderID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, o, models.OrderStatusCancelled); err != nil {
		return nil, err
	}
	if err := m.transition(o, models.OrderStatusCancelled); err != nil {
		return nil, err
	}
	return o, nil
}

func (m *MockEngine) ListOrders(ctx context.Context, f models.OrderFilter) (*models.OrderPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	if err := m.errs["list_orders"]; err != nil {
		return nil, err
	}
	page := &models.OrderPage{Items: []*models.Order{}, Page: f.Page, Limit: f.Limit}
	for _, o := range m.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		page.Items = append(page.Items, o)
	}
	page.Total = len(page.Items)
	return page, nil
}

func (m *MockEngine) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["get_order"]; err != nil {
		return nil, err
	}
	return m.order(orderID)
}

func (m *MockEngine) OrderHistory(ctx context.Context, orderID string) ([]*models.OrderHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["order_history"]; err != nil {
		return nil, err
	}
	if _, err := m.order(orderID); err != nil {
		return nil, err
	}
	return []*models.OrderHistoryEntry{
		{OrderID: orderID, FromStatus: models.OrderStatusDraft, ToStatus: models.OrderStatusPending, ActorID: "buyer-1"},
	}, nil
}

func (m *MockEngine) CreatePoolGroup(ctx context.Context, productID, supplierID string, target int64, expiresAt time.Time) (*models.PoolGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["create_pool"]; err != nil {
		return nil, err
	}
	vc := validation.CreatePool(productID, supplierID, target, expiresAt, expiresAt.Add(-time.Hour))
	if !vc.IsValid() {
		return nil, &service.ValidationFailedError{Context: vc}
	}
	p := &models.PoolGroup{
		ID:             m.id("pool"),
		ProductID:      productID,
		SupplierID:     supplierID,
		TargetQuantity: target,
		Status:         models.PoolStatusOpen,
		ExpiresAt:      expiresAt,
	}
	m.pools[p.ID] = p
	return p, nil
}

func (m *MockEngine) GetPoolGroup(ctx context.Context, poolID string) (*models.PoolGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["get_pool"]; err != nil {
		return nil, err
	}
	p, ok := m.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: pool %s", service.ErrNotFound, poolID)
	}
	return p, nil
}

func (m *MockEngine) ExpirePool(ctx context.Context, poolID string) (*models.PoolGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["expire_pool"]; err != nil {
		return nil, err
	}
	p, ok := m.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: pool %s", service.ErrNotFound, poolID)
	}
	p.Status = models.PoolStatusExpired
	p.CurrentQuantity = 0
	return p, nil
}

func (m *MockEngine) Stats(ctx context.Context) (*models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["stats"]; err != nil {
		return nil, err
	}
	s := &models.Stats{
		OrdersByStatus: map[models.OrderStatus]int{},
		PoolsByStatus:  map[models.PoolStatus]int{},
	}
	for _, o := range m.orders {
		s.OrdersByStatus[o.Status]++
	}
	for _, p := range m.pools {
		s.PoolsByStatus[p.Status]++
		if p.Status == models.PoolStatusOpen {
			s.OpenQuantity += p.CurrentQuantity
		}
	}
	return s, nil
}
