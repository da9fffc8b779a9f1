package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lib/pq"
)

// Общие ошибки хранилища
var (
	// ErrConflict - конкурентная транзакция помешала (serialization failure, deadlock,
	// lock not available, нарушение уникальности активного участника). Повторяемо.
	ErrConflict = errors.New("storage conflict")

	// ErrTransient - потеря соединения с БД. Повторяемо.
	ErrTransient = errors.New("transient storage failure")
)

// Коды PostgreSQL, которые считаются конфликтом
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqUniqueViolation      = "23505"
	pqClassConnection      = "08"
)

// querier - общий интерфейс *sql.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// mapError переводит ошибки драйвера в ошибки хранилища.
// Исходная ошибка остаётся в цепочке.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqSerializationFailure,
			pqErr.Code == pqDeadlockDetected,
			pqErr.Code == pqLockNotAvailable,
			pqErr.Code == pqUniqueViolation:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case pqErr.Code.Class() == pqClassConnection:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// IsRetryable true для ошибок, после которых транзакцию можно повторить целиком
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrTransient)
}

// Repos - набор репозиториев поверх одного querier
type Repos struct {
	Orders       *OrderRepository
	Pools        *PoolRepository
	Participants *ParticipantRepository
	History      *HistoryRepository
	Actors       *ActorRepository
	Stats        *StatsRepository
}

func newRepos(q querier) Repos {
	return Repos{
		Orders:       NewOrderRepository(q),
		Pools:        NewPoolRepository(q),
		Participants: NewParticipantRepository(q),
		History:      NewHistoryRepository(q),
		Actors:       NewActorRepository(q),
		Stats:        NewStatsRepository(q),
	}
}

// Open открывает пул соединений Postgres и проверяет подключение
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(max(1, maxOpenConns/5))
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Store - точка входа в Postgres: репозитории без транзакции и InTx
type Store struct {
	Repos
	db *sql.DB
}

// NewStore создает Store поверх пула соединений
func NewStore(db *sql.DB) *Store {
	return &Store{Repos: newRepos(db), db: db}
}

// DB исходный пул соединений
func (s *Store) DB() *sql.DB {
	return s.db
}

// InTx выполняет fn в транзакции (READ COMMITTED + блокировки строк FOR UPDATE).
// Ошибка fn или commit откатывает всё.
func (s *Store) InTx(ctx context.Context, fn func(Repos) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(newRepos(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// Ping проверка соединения для /health
func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.db.PingContext(ctx))
}
