package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"groupbuy/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория заказов
var (
	ErrOrderNotFound = errors.New("order not found")
)

const orderColumns = `o.id, o.owner_id, o.status, o.pool_group_id, o.items, o.total, o.created_at, o.updated_at`

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db querier
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db querier) *OrderRepository {
	return &OrderRepository{db: db}
}

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var items []byte
	err := row.Scan(
		&order.ID,
		&order.OwnerID,
		&order.Status,
		&order.PoolGroupID,
		&items,
		&order.Total,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return nil, fmt.Errorf("decode order items: %w", err)
		}
	}
	return order, nil
}

// Create вставляет заказ. ID генерируется, если не задан.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Items == nil {
		order.Items = []models.OrderItem{}
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}

	query := `
		INSERT INTO orders (id, owner_id, status, pool_group_id, items, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.OwnerID,
		order.Status,
		order.PoolGroupID,
		items,
		order.Total,
		order.CreatedAt,
		order.UpdatedAt,
	)
	return mapError(err)
}

// GetByID возвращает заказ по ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
}

// GetByIDForUpdate возвращает заказ и блокирует строку до конца транзакции
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, id)
}

func (r *OrderRepository) get(ctx context.Context, query, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrOrderNotFound
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, mapError(err)
	}
	return order, nil
}

// Update сохраняет статус и принадлежность к пулу
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET status = $1, pool_group_id = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, order.Status, order.PoolGroupID, order.UpdatedAt, order.ID)
	if err != nil {
		return mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateStatusBulk переводит набор заказов в новый статус, возвращает число обновлённых
func (r *OrderRepository) UpdateStatusBulk(ctx context.Context, ids []string, status models.OrderStatus, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = ANY($3)`

	result, err := r.db.ExecContext(ctx, query, status, at, pq.Array(ids))
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}

// List возвращает страницу заказов по фильтру и общее количество совпадений
func (r *OrderRepository) List(ctx context.Context, f models.OrderFilter) ([]*models.Order, int, error) {
	f = f.WithDefaults()
	where, args := orderFilterClause(f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}
	if total == 0 {
		return []*models.Order{}, 0, nil
	}

	args = append(args, f.Limit, f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM orders o%s ORDER BY o.created_at DESC, o.id LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0, f.Limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, mapError(err)
	}

	return orders, total, nil
}

// orderFilterClause строит WHERE с $n плейсхолдерами
func orderFilterClause(f models.OrderFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != nil {
		add("o.owner_id = $%d", *f.UserID)
	}
	if f.Status != nil {
		add("o.status = $%d", string(*f.Status))
	}
	if f.PoolGroupID != nil {
		add("o.pool_group_id::text = $%d", *f.PoolGroupID)
	}
	if f.SupplierID != nil {
		add("o.pool_group_id IN (SELECT id FROM pool_groups WHERE supplier_id = $%d)", *f.SupplierID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// CountByStatus количество заказов по статусам
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	counts := make(map[models.OrderStatus]int, len(models.AllOrderStatuses))
	for rows.Next() {
		var status models.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
