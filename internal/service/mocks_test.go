package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"groupbuy/internal/models"
	"groupbuy/internal/repository"
	"groupbuy/pkg/ratelimit"
)

// ============ In-memory Store ============

// MockStore хранилище в памяти с откатом транзакций по снимку.
// Все обращения сериализуются одним мьютексом, InTx держит его всю транзакцию.
type MockStore struct {
	mu           sync.Mutex
	orders       map[string]*models.Order
	pools        map[string]*models.PoolGroup
	participants []*models.Participant
	history      []*models.OrderHistoryEntry

	historyErr   error // ошибка Append истории
	conflicts    int   // сколько следующих commit завершатся конфликтом
	txCount      int
	commitCount  int
	listErr      error
	readConflict int // сколько следующих чтений вне транзакции завершатся конфликтом
}

func NewMockStore() *MockStore {
	return &MockStore{
		orders: make(map[string]*models.Order),
		pools:  make(map[string]*models.PoolGroup),
	}
}

type mockSnapshot struct {
	orders       map[string]*models.Order
	pools        map[string]*models.PoolGroup
	participants []*models.Participant
	history      []*models.OrderHistoryEntry
}

func (s *MockStore) snapshot() mockSnapshot {
	snap := mockSnapshot{
		orders: make(map[string]*models.Order, len(s.orders)),
		pools:  make(map[string]*models.PoolGroup, len(s.pools)),
	}
	for id, o := range s.orders {
		snap.orders[id] = o.Clone()
	}
	for id, p := range s.pools {
		snap.pools[id] = p.Clone()
	}
	for _, p := range s.participants {
		c := *p
		snap.participants = append(snap.participants, &c)
	}
	snap.history = append(snap.history, s.history...)
	return snap
}

func (s *MockStore) restore(snap mockSnapshot) {
	s.orders = snap.orders
	s.pools = snap.pools
	s.participants = snap.participants
	s.history = snap.history
}

func (s *MockStore) Repositories() Repositories {
	return s.repos(true)
}

func (s *MockStore) InTx(ctx context.Context, fn func(Repositories) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txCount++
	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	if err := fn(s.repos(false)); err != nil {
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		return fmt.Errorf("commit: %w", repository.ErrConflict)
	}
	s.commitCount++
	return nil
}

func (s *MockStore) repos(locked bool) Repositories {
	tx := &mockTx{store: s, locked: locked}
	return Repositories{
		Orders:       &mockOrders{tx},
		Pools:        &mockPools{tx},
		Participants: &mockParticipants{tx},
		History:      &mockHistory{tx},
		Stats:        &mockStats{tx},
	}
}

// ============ Хелперы для тестов ============

func (s *MockStore) SetHistoryErr(err error) {
	s.mu.Lock()
	s.historyErr = err
	s.mu.Unlock()
}

func (s *MockStore) FailCommits(n int) {
	s.mu.Lock()
	s.conflicts = n
	s.mu.Unlock()
}

func (s *MockStore) TxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

func (s *MockStore) Order(id string) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		return o.Clone()
	}
	return nil
}

func (s *MockStore) Pool(id string) *models.PoolGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pools[id]; ok {
		return p.Clone()
	}
	return nil
}

func (s *MockStore) ActiveSum(poolID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, p := range s.participants {
		if p.PoolGroupID == poolID && p.Active {
			sum += p.Quantity
		}
	}
	return sum
}

func (s *MockStore) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *MockStore) PutPool(p *models.PoolGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.pools[p.ID] = p.Clone()
}

// mockTx доступ к данным: locked=true берёт мьютекс на каждый вызов (чтение вне транзакции)
type mockTx struct {
	store  *MockStore
	locked bool
}

func (t *mockTx) enter() func() {
	if !t.locked {
		return func() {}
	}
	t.store.mu.Lock()
	return t.store.mu.Unlock
}

// ============ Mock OrderRepository ============

type mockOrders struct{ *mockTx }

func (m *mockOrders) Create(ctx context.Context, order *models.Order) error {
	defer m.enter()()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Items == nil {
		order.Items = []models.OrderItem{}
	}
	m.store.orders[order.ID] = order.Clone()
	return nil
}

func (m *mockOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	defer m.enter()()
	if m.locked && m.store.readConflict > 0 {
		m.store.readConflict--
		return nil, repository.ErrTransient
	}
	o, ok := m.store.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (m *mockOrders) GetByIDForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return m.GetByID(ctx, id)
}

func (m *mockOrders) Update(ctx context.Context, order *models.Order) error {
	defer m.enter()()
	o, ok := m.store.orders[order.ID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = order.Status
	o.PoolGroupID = order.Clone().PoolGroupID
	o.UpdatedAt = order.UpdatedAt
	return nil
}

func (m *mockOrders) UpdateStatusBulk(ctx context.Context, ids []string, status models.OrderStatus, at time.Time) (int64, error) {
	defer m.enter()()
	var n int64
	for _, id := range ids {
		if o, ok := m.store.orders[id]; ok {
			o.Status = status
			o.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (m *mockOrders) List(ctx context.Context, f models.OrderFilter) ([]*models.Order, int, error) {
	defer m.enter()()
	if m.store.listErr != nil {
		return nil, 0, m.store.listErr
	}

	var matched []*models.Order
	for _, o := range m.store.orders {
		if f.UserID != nil && o.OwnerID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.PoolGroupID != nil && (o.PoolGroupID == nil || *o.PoolGroupID != *f.PoolGroupID) {
			continue
		}
		if f.SupplierID != nil {
			if o.PoolGroupID == nil {
				continue
			}
			p, ok := m.store.pools[*o.PoolGroupID]
			if !ok || p.SupplierID != *f.SupplierID {
				continue
			}
		}
		matched = append(matched, o.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	from := f.Offset()
	if from >= total {
		return []*models.Order{}, total, nil
	}
	to := from + f.Limit
	if to > total {
		to = total
	}
	return matched[from:to], total, nil
}

// ============ Mock PoolRepository ============

type mockPools struct{ *mockTx }

func (m *mockPools) Create(ctx context.Context, pool *models.PoolGroup) error {
	defer m.enter()()
	if pool.ID == "" {
		pool.ID = uuid.NewString()
	}
	m.store.pools[pool.ID] = pool.Clone()
	return nil
}

func (m *mockPools) GetByID(ctx context.Context, id string) (*models.PoolGroup, error) {
	defer m.enter()()
	p, ok := m.store.pools[id]
	if !ok {
		return nil, repository.ErrPoolNotFound
	}
	return p.Clone(), nil
}

func (m *mockPools) GetByIDForUpdate(ctx context.Context, id string) (*models.PoolGroup, error) {
	return m.GetByID(ctx, id)
}

func (m *mockPools) Update(ctx context.Context, pool *models.PoolGroup) error {
	defer m.enter()()
	p, ok := m.store.pools[pool.ID]
	if !ok {
		return repository.ErrPoolNotFound
	}
	p.CurrentQuantity = pool.CurrentQuantity
	p.Status = pool.Status
	p.UpdatedAt = pool.UpdatedAt
	return nil
}

func (m *mockPools) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]string, error) {
	defer m.enter()()
	var due []*models.PoolGroup
	for _, p := range m.store.pools {
		if p.Status == models.PoolStatusOpen && p.IsExpired(now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })

	ids := make([]string, 0, len(due))
	for _, p := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// ============ Mock ParticipantRepository ============

type mockParticipants struct{ *mockTx }

func (m *mockParticipants) Create(ctx context.Context, p *models.Participant) error {
	defer m.enter()()
	for _, existing := range m.store.participants {
		if existing.OrderID == p.OrderID && existing.Active {
			return fmt.Errorf("duplicate active participant: %w", repository.ErrConflict)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	c := *p
	m.store.participants = append(m.store.participants, &c)
	return nil
}

func (m *mockParticipants) GetActiveByOrder(ctx context.Context, orderID string) (*models.Participant, error) {
	defer m.enter()()
	for _, p := range m.store.participants {
		if p.OrderID == orderID && p.Active {
			c := *p
			return &c, nil
		}
	}
	return nil, repository.ErrParticipantNotFound
}

func (m *mockParticipants) ListActiveByPool(ctx context.Context, poolID string) ([]*models.Participant, error) {
	defer m.enter()()
	var result []*models.Participant
	for _, p := range m.store.participants {
		if p.PoolGroupID == poolID && p.Active {
			c := *p
			result = append(result, &c)
		}
	}
	return result, nil
}

func (m *mockParticipants) SumActive(ctx context.Context, poolID string) (int64, error) {
	defer m.enter()()
	var sum int64
	for _, p := range m.store.participants {
		if p.PoolGroupID == poolID && p.Active {
			sum += p.Quantity
		}
	}
	return sum, nil
}

func (m *mockParticipants) Deactivate(ctx context.Context, id string, at time.Time) error {
	defer m.enter()()
	for _, p := range m.store.participants {
		if p.ID == id && p.Active {
			p.Active = false
			left := at
			p.LeftAt = &left
			return nil
		}
	}
	return repository.ErrParticipantNotFound
}

func (m *mockParticipants) DeactivateByPool(ctx context.Context, poolID string, at time.Time) (int64, error) {
	defer m.enter()()
	var n int64
	for _, p := range m.store.participants {
		if p.PoolGroupID == poolID && p.Active {
			p.Active = false
			left := at
			p.LeftAt = &left
			n++
		}
	}
	return n, nil
}

// ============ Mock HistoryRepository ============

type mockHistory struct{ *mockTx }

func (m *mockHistory) Append(ctx context.Context, e *models.OrderHistoryEntry) error {
	defer m.enter()()
	if m.store.historyErr != nil {
		return m.store.historyErr
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	c := *e
	m.store.history = append(m.store.history, &c)
	return nil
}

func (m *mockHistory) ListByOrder(ctx context.Context, orderID string) ([]*models.OrderHistoryEntry, error) {
	defer m.enter()()
	result := []*models.OrderHistoryEntry{}
	for _, e := range m.store.history {
		if e.OrderID == orderID {
			c := *e
			result = append(result, &c)
		}
	}
	return result, nil
}

// ============ Mock StatsRepository ============

type mockStats struct{ *mockTx }

func (m *mockStats) Get(ctx context.Context) (*models.Stats, error) {
	defer m.enter()()
	stats := &models.Stats{
		OrdersByStatus: make(map[models.OrderStatus]int),
		PoolsByStatus:  make(map[models.PoolStatus]int),
	}
	for _, o := range m.store.orders {
		stats.OrdersByStatus[o.Status]++
	}
	for _, p := range m.store.pools {
		stats.PoolsByStatus[p.Status]++
		if p.Status == models.PoolStatusOpen {
			stats.OpenQuantity += p.CurrentQuantity
		}
	}
	return stats, nil
}

// ============ Прочие коллабораторы ============

// fakeClock управляемое время
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now.UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingPublisher запоминает опубликованные события
type recordingPublisher struct {
	mu          sync.Mutex
	transitions []models.TransitionEvent
	pools       []*models.PoolGroup
	err         error
}

func (p *recordingPublisher) PublishTransition(ctx context.Context, ev models.TransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, ev)
	return p.err
}

func (p *recordingPublisher) PublishPool(ctx context.Context, pool *models.PoolGroup) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools = append(p.pools, pool.Clone())
	return p.err
}

func (p *recordingPublisher) Transitions() []models.TransitionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TransitionEvent(nil), p.transitions...)
}

func (p *recordingPublisher) Pools() []*models.PoolGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.PoolGroup(nil), p.pools...)
}

// mockAdmission считает запросы и отклоняет при заданной ошибке
type mockAdmission struct {
	mu      sync.Mutex
	calls   []string
	err     error
	allowed int // сколько запросов пропустить до ошибки, -1 = без ограничения
}

func (a *mockAdmission) RemoveTokens(ctx context.Context, endpoint ratelimit.Endpoint, client string, n int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, string(endpoint)+":"+client)
	if a.allowed < 0 || len(a.calls) <= a.allowed {
		return nil
	}
	return a.err
}

// staticIdentity фиксированный актор
type staticIdentity struct {
	actor  string
	role   models.Role
	client string
}

func (i staticIdentity) ActorID(context.Context) string   { return i.actor }
func (i staticIdentity) ClientKey(context.Context) string { return i.client }

func (i staticIdentity) Actor(context.Context) *models.Actor {
	if i.actor == "" {
		return nil
	}
	return &models.Actor{ID: i.actor, Role: i.role}
}
