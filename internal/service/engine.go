package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"groupbuy/internal/lifecycle"
	"groupbuy/internal/models"
	"groupbuy/internal/repository"
	"groupbuy/internal/validation"
	"groupbuy/pkg/ratelimit"
	"groupbuy/pkg/retry"
	"groupbuy/pkg/utils"
)

// Комментарии истории для переходов, выполняемых движком
const (
	NoteJoinedPool  = "joined pool"
	NoteLeftPool    = "left pool"
	NotePoolFilled  = "pool filled"
	NotePoolExpired = "pool expired below threshold"
)

// ExpireBatchSize сколько истёкших пулов обрабатывается за один проход
const ExpireBatchSize = 100

// EngineDeps зависимости движка
type EngineDeps struct {
	Store     Store
	Clock     Clock          // nil = SystemClock
	Identity  Identity       // nil = анонимный запрос
	Publisher EventPublisher // nil = события отбрасываются
	Admission Admission      // nil = без ограничения частоты
	Retry     retry.Policy   // нулевое значение = retry.DefaultPolicy()
	Logger    *utils.Logger  // nil = глобальный logger
}

// Engine - агрегатор пулов и машина состояний заказов.
//
// Каждая изменяющая операция - одна транзакция: проверка правил, изменение
// заказа/пула/участников и запись истории фиксируются вместе или не фиксируются вовсе.
// Изменения одного пула сериализуются: keyed mutex в процессе и SELECT ... FOR UPDATE
// строки пула в БД. Порядок захвата всегда пул -> заказ.
type Engine struct {
	store     Store
	clock     Clock
	identity  Identity
	publisher EventPublisher
	admission Admission
	retry     retry.Policy
	base      *utils.Logger
	log       *utils.Logger

	poolLocks  *keyedLocks
	orderLocks *keyedLocks
}

// JoinResult результат вступления в пул
type JoinResult struct {
	Order  *models.Order     `json:"order"`
	Pool   *models.PoolGroup `json:"pool"`
	Filled bool              `json:"filled"` // вступление заполнило пул
}

// NewEngine создает движок
func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}

	e := &Engine{
		store:      deps.Store,
		clock:      deps.Clock,
		identity:   deps.Identity,
		publisher:  deps.Publisher,
		admission:  deps.Admission,
		retry:      deps.Retry,
		base:       deps.Logger,
		poolLocks:  newKeyedLocks(),
		orderLocks: newKeyedLocks(),
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.identity == nil {
		e.identity = anonymous{}
	}
	if e.publisher == nil {
		e.publisher = NopPublisher{}
	}
	if e.retry.MaxAttempts == 0 {
		e.retry = retry.DefaultPolicy()
	}
	if e.base == nil {
		e.base = utils.L()
	}
	e.log = e.base.WithComponent("engine")
	return e, nil
}

// unit накапливает результаты одной попытки транзакции для публикации после commit
type unit struct {
	events []models.TransitionEvent
	pools  []*models.PoolGroup
}

// run выполняет единицу работы с блокировками и ограниченными повторами.
// lock вызывается на каждой попытке, события публикуются только после commit.
func (e *Engine) run(ctx context.Context, op string, lock func(context.Context) (func(), error), fn func(Repositories, *unit) error) error {
	start := time.Now()

	policy := e.retry
	policy.RetryIf = retryable
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		StorageRetries.WithLabelValues(op).Inc()
		e.log.Debug("retrying unit of work",
			zap.String("operation", op),
			utils.Attempt(attempt),
			utils.Err(err),
			zap.Duration("delay", delay),
		)
	}

	var u *unit
	err := retry.Do(ctx, policy, func() error {
		u = &unit{}

		release := func() {}
		if lock != nil {
			r, err := lock(ctx)
			if err != nil {
				return err
			}
			release = r
		}
		defer release()

		return translate(e.store.InTx(ctx, func(r Repositories) error {
			return fn(r, u)
		}))
	})

	RecordOperation(op, err, time.Since(start))
	if err != nil {
		return err
	}

	RecordTransitions(u.events)
	e.publish(ctx, op, u)
	return nil
}

// publish рассылает события зафиксированной единицы работы.
// Ошибки доставки не откатывают переход.
func (e *Engine) publish(ctx context.Context, op string, u *unit) {
	ctx = context.WithoutCancel(ctx)

	for _, ev := range u.events {
		if err := e.publisher.PublishTransition(ctx, ev); err != nil {
			PublishFailures.WithLabelValues("transition").Inc()
			e.log.Warn("failed to publish transition",
				zap.String("operation", op),
				utils.OrderID(ev.OrderID),
				utils.ToStatus(string(ev.ToStatus)),
				utils.Err(err),
			)
		}
	}
	for _, p := range u.pools {
		if err := e.publisher.PublishPool(ctx, p); err != nil {
			PublishFailures.WithLabelValues("pool").Inc()
			e.log.Warn("failed to publish pool update",
				zap.String("operation", op),
				utils.PoolID(p.ID),
				utils.Err(err),
			)
		}
	}
}

// lockPool блокирует пул в процессе
func (e *Engine) lockPool(poolID string) func(context.Context) (func(), error) {
	return func(ctx context.Context) (func(), error) {
		return e.poolLocks.Lock(ctx, poolID)
	}
}

// lockPair блокирует пул (если задан), затем заказ
func (e *Engine) lockPair(ctx context.Context, poolID *string, orderID string) (func(), error) {
	releasePool := func() {}
	if poolID != nil {
		r, err := e.poolLocks.Lock(ctx, *poolID)
		if err != nil {
			return nil, err
		}
		releasePool = r
	}
	releaseOrder, err := e.orderLocks.Lock(ctx, orderID)
	if err != nil {
		releasePool()
		return nil, err
	}
	return func() {
		releaseOrder()
		releasePool()
	}, nil
}

// lockOrder блокирует пул заказа (если есть), затем сам заказ.
// Пул читается без блокировки, внутри транзакции он сверяется с lockedPool.
func (e *Engine) lockOrder(orderID string, lockedPool **string) func(context.Context) (func(), error) {
	return func(ctx context.Context) (func(), error) {
		order, err := e.store.Repositories().Orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, translate(err)
		}

		*lockedPool = nil
		if order.PoolGroupID != nil {
			id := *order.PoolGroupID
			*lockedPool = &id
		}
		return e.lockPair(ctx, *lockedPool, orderID)
	}
}

// loadOrderWithPool блокирует строки в порядке пул -> заказ и проверяет,
// что заказ не сменил пул с момента захвата блокировок
func loadOrderWithPool(ctx context.Context, r Repositories, orderID string, lockedPool *string) (*models.Order, *models.PoolGroup, error) {
	var pool *models.PoolGroup
	if lockedPool != nil {
		p, err := r.Pools.GetByIDForUpdate(ctx, *lockedPool)
		if err != nil {
			return nil, nil, err
		}
		pool = p
	}

	order, err := r.Orders.GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if !samePool(order.PoolGroupID, lockedPool) {
		return nil, nil, fmt.Errorf("%w: order %s moved to another pool", ErrConflict, orderID)
	}
	return order, pool, nil
}

func samePool(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// actor актор из контекста запроса или fallback
func (e *Engine) actor(ctx context.Context, fallback string) string {
	if id := e.identity.ActorID(ctx); id != "" {
		return id
	}
	return fallback
}

// applyTransition применяет переход к заказу в памяти и пишет историю.
// Сохранение самого заказа - на вызывающем.
func applyTransition(ctx context.Context, r Repositories, u *unit, order *models.Order, to models.OrderStatus, actorID, note string, now time.Time) error {
	tr, err := lifecycle.Apply(order, to, actorID, note)
	if err != nil {
		c := validation.New()
		c.Add("status", validation.CodeInvalidTransition, err.Error())
		return failed(c)
	}
	order.UpdatedAt = now

	entry := &models.OrderHistoryEntry{
		OrderID:    tr.OrderID,
		FromStatus: tr.From,
		ToStatus:   tr.To,
		ActorID:    tr.ActorID,
		Note:       tr.Note,
		Timestamp:  now,
	}
	if err := r.History.Append(ctx, entry); err != nil {
		return fmt.Errorf("append history for order %s: %w", order.ID, err)
	}

	u.events = append(u.events, models.EventFromEntry(entry, order.PoolGroupID))
	return nil
}

// transitionOrder переход + сохранение заказа
func transitionOrder(ctx context.Context, r Repositories, u *unit, order *models.Order, to models.OrderStatus, actorID, note string, now time.Time) error {
	if err := applyTransition(ctx, r, u, order, to, actorID, note, now); err != nil {
		return err
	}
	return r.Orders.Update(ctx, order)
}

// ============================================================
// Заказы
// ============================================================

// CreateOrder создает заказ в статусе DRAFT
func (e *Engine) CreateOrder(ctx context.Context, ownerID string, items []models.OrderItem) (*models.Order, error) {
	if err := failed(validation.CreateOrder(ownerID, items)); err != nil {
		RecordOperation("create_order", err, 0)
		return nil, err
	}

	now := e.clock.Now()
	order := &models.Order{
		OwnerID:   ownerID,
		Status:    models.OrderStatusDraft,
		Items:     append([]models.OrderItem(nil), items...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.ComputeTotal()

	err := e.run(ctx, "create_order", nil, func(r Repositories, _ *unit) error {
		order.ID = ""
		return r.Orders.Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("order created", utils.OrderID(order.ID), zap.String("owner_id", ownerID))
	return order.Clone(), nil
}

// SubmitOrder DRAFT -> PENDING
func (e *Engine) SubmitOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var result *models.Order
	var lockedPool *string

	err := e.run(ctx, "submit_order", e.lockOrder(orderID, &lockedPool), func(r Repositories, u *unit) error {
		order, pool, err := loadOrderWithPool(ctx, r, orderID, lockedPool)
		if err != nil {
			return err
		}
		if err := Authorize(e.identity.Actor(ctx), order, pool, models.OrderStatusPending); err != nil {
			return err
		}
		if err := failed(validation.SubmitOrder(order)); err != nil {
			return err
		}
		if err := transitionOrder(ctx, r, u, order, models.OrderStatusPending, e.actor(ctx, order.OwnerID), "", e.clock.Now()); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

// UpdateOrderStatus произвольный допустимый переход.
//
// POOLING -> CANCELLED снимает вклад заказа из пула (пул должен быть OPEN).
// POOLING -> PROCESSING оставляет вклад учтённым.
// В POOLING заказ попадает только через JoinPool.
func (e *Engine) UpdateOrderStatus(ctx context.Context, orderID string, to models.OrderStatus, actorID, note string) (*models.Order, error) {
	if actorID == "" {
		actorID = e.actor(ctx, models.SystemActorID)
	}

	var result *models.Order
	var lockedPool *string

	err := e.run(ctx, "update_status", e.lockOrder(orderID, &lockedPool), func(r Repositories, u *unit) error {
		order, pool, err := loadOrderWithPool(ctx, r, orderID, lockedPool)
		if err != nil {
			return err
		}
		if err := Authorize(e.identity.Actor(ctx), order, pool, to); err != nil {
			return err
		}

		c := validation.UpdateStatus(validation.StatusUpdateInput{Order: order, To: to, Pool: pool, Note: note})
		if err := failed(c); err != nil {
			return err
		}

		now := e.clock.Now()
		if order.Status == models.OrderStatusPooling && to == models.OrderStatusCancelled && pool != nil {
			if err := retract(ctx, r, u, order.ID, pool, now); err != nil {
				return err
			}
		}

		if err := transitionOrder(ctx, r, u, order, to, actorID, note, now); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

// retract снимает активного участника заказа и пересчитывает объём пула
func retract(ctx context.Context, r Repositories, u *unit, orderID string, pool *models.PoolGroup, now time.Time) error {
	p, err := r.Participants.GetActiveByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			return nil
		}
		return err
	}
	if err := r.Participants.Deactivate(ctx, p.ID, now); err != nil {
		return err
	}
	return recount(ctx, r, u, pool, now)
}

// recount пересчитывает current_quantity по активным участникам и сохраняет пул
func recount(ctx context.Context, r Repositories, u *unit, pool *models.PoolGroup, now time.Time) error {
	current, err := r.Participants.SumActive(ctx, pool.ID)
	if err != nil {
		return err
	}
	if current < 0 || current > pool.TargetQuantity {
		return fmt.Errorf("%w: pool %s out of range (%d of %d)", ErrConflict, pool.ID, current, pool.TargetQuantity)
	}

	pool.CurrentQuantity = current
	pool.UpdatedAt = now
	if err := r.Pools.Update(ctx, pool); err != nil {
		return err
	}
	u.pools = append(u.pools, pool.Clone())
	return nil
}

// ============================================================
// Пулы
// ============================================================

// CreatePoolGroup создает открытый пул
func (e *Engine) CreatePoolGroup(ctx context.Context, productID, supplierID string, target int64, expiresAt time.Time) (*models.PoolGroup, error) {
	now := e.clock.Now()
	if err := failed(validation.CreatePool(productID, supplierID, target, expiresAt, now)); err != nil {
		RecordOperation("create_pool", err, 0)
		return nil, err
	}

	pool := &models.PoolGroup{
		ProductID:      productID,
		SupplierID:     supplierID,
		TargetQuantity: target,
		Status:         models.PoolStatusOpen,
		ExpiresAt:      expiresAt.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := e.run(ctx, "create_pool", nil, func(r Repositories, u *unit) error {
		pool.ID = ""
		if err := r.Pools.Create(ctx, pool); err != nil {
			return err
		}
		u.pools = append(u.pools, pool.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("pool created",
		utils.PoolID(pool.ID),
		utils.ProductID(productID),
		utils.SupplierID(supplierID),
		utils.Quantity(target),
	)
	return pool.Clone(), nil
}

// JoinPool вступление заказа в пул.
//
// Проверка ёмкости и запись вклада выполняются под блокировкой пула: из двух
// конкурирующих вступлений, которые вместе превышают цель, проходит зафиксированное первым.
// Частичного допуска нет. Если объём достиг цели, пул переходит в FILLED и все
// активные заказы пула переходят POOLING -> PROCESSING в той же транзакции.
func (e *Engine) JoinPool(ctx context.Context, orderID, poolID string, quantity int64) (*JoinResult, error) {
	if e.admission != nil {
		client := e.identity.ClientKey(ctx)
		if err := e.admission.RemoveTokens(ctx, ratelimit.EndpointPoolJoin, client, 1); err != nil {
			RecordOperation("join_pool", err, 0)
			return nil, err
		}
	}

	var result *JoinResult
	lock := func(ctx context.Context) (func(), error) {
		return e.lockPair(ctx, &poolID, orderID)
	}

	err := e.run(ctx, "join_pool", lock, func(r Repositories, u *unit) error {
		pool, err := r.Pools.GetByIDForUpdate(ctx, poolID)
		if err != nil {
			return err
		}
		order, err := r.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := Authorize(e.identity.Actor(ctx), order, pool, models.OrderStatusPooling); err != nil {
			return err
		}

		active, err := r.Participants.GetActiveByOrder(ctx, orderID)
		if err != nil && !errors.Is(err, repository.ErrParticipantNotFound) {
			return err
		}

		now := e.clock.Now()
		c := validation.JoinPool(validation.JoinInput{
			Order:    order,
			Pool:     pool,
			Active:   active,
			Quantity: quantity,
			Now:      now,
		})
		if err := failed(c); err != nil {
			return err
		}

		participant := &models.Participant{
			PoolGroupID: pool.ID,
			OrderID:     order.ID,
			Quantity:    quantity,
			Active:      true,
			JoinedAt:    now,
		}
		if err := r.Participants.Create(ctx, participant); err != nil {
			return err
		}

		id := pool.ID
		order.PoolGroupID = &id
		if err := transitionOrder(ctx, r, u, order, models.OrderStatusPooling, e.actor(ctx, order.OwnerID), NoteJoinedPool, now); err != nil {
			return err
		}

		current, err := r.Participants.SumActive(ctx, pool.ID)
		if err != nil {
			return err
		}
		if current < 0 || current > pool.TargetQuantity {
			return fmt.Errorf("%w: pool %s out of range (%d of %d)", ErrConflict, pool.ID, current, pool.TargetQuantity)
		}
		pool.CurrentQuantity = current
		pool.UpdatedAt = now

		filled := current == pool.TargetQuantity
		if filled {
			pool.Status = models.PoolStatusFilled
			if err := fill(ctx, r, u, pool, order, now); err != nil {
				return err
			}
		}

		if err := r.Pools.Update(ctx, pool); err != nil {
			return err
		}
		u.pools = append(u.pools, pool.Clone())

		result = &JoinResult{Order: order.Clone(), Pool: pool.Clone(), Filled: filled}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Filled {
		RecordPoolOutcome(models.PoolStatusFilled)
		e.log.Info("pool filled",
			utils.PoolID(poolID),
			utils.Quantity(result.Pool.CurrentQuantity),
		)
	}
	return result, nil
}

// fill переводит все активные заказы пула POOLING -> PROCESSING.
// joining - заказ текущего вступления, он уже заблокирован и изменён в памяти.
func fill(ctx context.Context, r Repositories, u *unit, pool *models.PoolGroup, joining *models.Order, now time.Time) error {
	participants, err := r.Participants.ListActiveByPool(ctx, pool.ID)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		order := joining
		if p.OrderID != joining.ID {
			order, err = r.Orders.GetByIDForUpdate(ctx, p.OrderID)
			if err != nil {
				return err
			}
		}
		// заказ мог быть переведён в PROCESSING вручную раньше
		if order.Status != models.OrderStatusPooling {
			continue
		}
		if err := applyTransition(ctx, r, u, order, models.OrderStatusProcessing, models.SystemActorID, NotePoolFilled, now); err != nil {
			return err
		}
		ids = append(ids, order.ID)
	}

	_, err = r.Orders.UpdateStatusBulk(ctx, ids, models.OrderStatusProcessing, now)
	return err
}

// LeavePool выход заказа из пула: POOLING -> CANCELLED, вклад снимается.
// Допустим только пока пул OPEN.
func (e *Engine) LeavePool(ctx context.Context, orderID string) (*models.Order, error) {
	var result *models.Order
	var lockedPool *string

	err := e.run(ctx, "leave_pool", e.lockOrder(orderID, &lockedPool), func(r Repositories, u *unit) error {
		order, pool, err := loadOrderWithPool(ctx, r, orderID, lockedPool)
		if err != nil {
			return err
		}
		if err := Authorize(e.identity.Actor(ctx), order, pool, models.OrderStatusCancelled); err != nil {
			return err
		}

		participant, err := r.Participants.GetActiveByOrder(ctx, orderID)
		if err != nil && !errors.Is(err, repository.ErrParticipantNotFound) {
			return err
		}
		if err := failed(validation.LeavePool(order, participant, pool)); err != nil {
			return err
		}

		now := e.clock.Now()
		if err := r.Participants.Deactivate(ctx, participant.ID, now); err != nil {
			return err
		}
		if err := recount(ctx, r, u, pool, now); err != nil {
			return err
		}
		if err := transitionOrder(ctx, r, u, order, models.OrderStatusCancelled, e.actor(ctx, order.OwnerID), NoteLeftPool, now); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

// ExpirePool истечение пула, не набравшего цель: пул -> EXPIRED,
// все заказы в POOLING -> CANCELLED, участники снимаются.
func (e *Engine) ExpirePool(ctx context.Context, poolID string) (*models.PoolGroup, error) {
	var result *models.PoolGroup
	var cancelled int

	err := e.run(ctx, "expire_pool", e.lockPool(poolID), func(r Repositories, u *unit) error {
		pool, err := r.Pools.GetByIDForUpdate(ctx, poolID)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		if err := failed(validation.ExpirePool(pool, now)); err != nil {
			return err
		}

		participants, err := r.Participants.ListActiveByPool(ctx, pool.ID)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(participants))
		for _, p := range participants {
			order, err := r.Orders.GetByIDForUpdate(ctx, p.OrderID)
			if err != nil {
				return err
			}
			if order.Status != models.OrderStatusPooling {
				continue
			}
			if err := applyTransition(ctx, r, u, order, models.OrderStatusCancelled, models.SystemActorID, NotePoolExpired, now); err != nil {
				return err
			}
			ids = append(ids, order.ID)
		}

		if _, err := r.Participants.DeactivateByPool(ctx, pool.ID, now); err != nil {
			return err
		}
		if _, err := r.Orders.UpdateStatusBulk(ctx, ids, models.OrderStatusCancelled, now); err != nil {
			return err
		}

		pool.Status = models.PoolStatusExpired
		pool.CurrentQuantity = 0
		pool.UpdatedAt = now
		if err := r.Pools.Update(ctx, pool); err != nil {
			return err
		}
		u.pools = append(u.pools, pool.Clone())

		result = pool
		cancelled = len(ids)
		return nil
	})
	if err != nil {
		return nil, err
	}

	RecordPoolOutcome(models.PoolStatusExpired)
	e.log.Info("pool expired", utils.PoolID(poolID), zap.Int("cancelled_orders", cancelled))
	return result.Clone(), nil
}

// ExpireDue истекает все открытые пулы с прошедшим сроком. Возвращает число истёкших.
// Пул, закрытый конкурентной операцией между выборкой и блокировкой, пропускается.
func (e *Engine) ExpireDue(ctx context.Context) (int, error) {
	ids, err := e.store.Repositories().Pools.ListExpiredOpen(ctx, e.clock.Now(), ExpireBatchSize)
	if err != nil {
		return 0, translate(err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if _, err := e.ExpirePool(ctx, id); err != nil {
			if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrNotFound) {
				e.log.Debug("pool skipped by sweeper", utils.PoolID(id), utils.Err(err))
				continue
			}
			return expired, fmt.Errorf("expire pool %s: %w", id, err)
		}
		expired++
	}
	return expired, nil
}

// ============================================================
// Чтение
// ============================================================

// ListOrders страница заказов по фильтру
func (e *Engine) ListOrders(ctx context.Context, f models.OrderFilter) (*models.OrderPage, error) {
	f = f.WithDefaults()
	if err := failed(validation.Pagination(f)); err != nil {
		return nil, err
	}

	var page *models.OrderPage
	err := e.read(ctx, "list_orders", func(r Repositories) error {
		orders, total, err := r.Orders.List(ctx, f)
		if err != nil {
			return err
		}
		page = &models.OrderPage{Items: orders, Total: total, Page: f.Page, Limit: f.Limit}
		return nil
	})
	return page, err
}

// GetOrder заказ по ID
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order *models.Order
	err := e.read(ctx, "get_order", func(r Repositories) error {
		var err error
		order, err = r.Orders.GetByID(ctx, orderID)
		return err
	})
	return order, err
}

// GetPoolGroup пул по ID
func (e *Engine) GetPoolGroup(ctx context.Context, poolID string) (*models.PoolGroup, error) {
	var pool *models.PoolGroup
	err := e.read(ctx, "get_pool", func(r Repositories) error {
		var err error
		pool, err = r.Pools.GetByID(ctx, poolID)
		return err
	})
	return pool, err
}

// OrderHistory журнал переходов заказа
func (e *Engine) OrderHistory(ctx context.Context, orderID string) ([]*models.OrderHistoryEntry, error) {
	var entries []*models.OrderHistoryEntry
	err := e.read(ctx, "order_history", func(r Repositories) error {
		if _, err := r.Orders.GetByID(ctx, orderID); err != nil {
			return err
		}
		var err error
		entries, err = r.History.ListByOrder(ctx, orderID)
		return err
	})
	return entries, err
}

// Stats счётчики по статусам
func (e *Engine) Stats(ctx context.Context) (*models.Stats, error) {
	var stats *models.Stats
	err := e.read(ctx, "stats", func(r Repositories) error {
		var err error
		stats, err = r.Stats.Get(ctx)
		return err
	})
	return stats, err
}

// read чтение без транзакции с теми же повторами
func (e *Engine) read(ctx context.Context, op string, fn func(Repositories) error) error {
	policy := e.retry
	policy.RetryIf = retryable

	start := time.Now()
	err := retry.Do(ctx, policy, func() error {
		return translate(fn(e.store.Repositories()))
	})
	RecordOperation(op, err, time.Since(start))
	return err
}
