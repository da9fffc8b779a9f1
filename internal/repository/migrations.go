package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// CurrentSchemaVersion последняя версия схемы
const CurrentSchemaVersion = "1.1.0"

// Migration - шаг миграции схемы
type Migration struct {
	Version string
	Up      string
}

// AllMigrations все миграции по возрастанию версии
var AllMigrations = []Migration{
	{Version: "1.0.0", Up: migrationV1Up},
	{Version: "1.1.0", Up: migrationV11Up},
}

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS pool_groups (
    id               UUID PRIMARY KEY,
    product_id       TEXT NOT NULL,
    supplier_id      TEXT NOT NULL,
    target_quantity  BIGINT NOT NULL CHECK (target_quantity > 0),
    current_quantity BIGINT NOT NULL DEFAULT 0 CHECK (current_quantity >= 0),
    status           TEXT NOT NULL,
    expires_at       TIMESTAMPTZ NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL,
    CHECK (current_quantity <= target_quantity)
);

CREATE INDEX IF NOT EXISTS idx_pool_groups_status_expires ON pool_groups(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_pool_groups_supplier ON pool_groups(supplier_id);

CREATE TABLE IF NOT EXISTS orders (
    id            UUID PRIMARY KEY,
    owner_id      TEXT NOT NULL,
    status        TEXT NOT NULL,
    pool_group_id UUID REFERENCES pool_groups(id),
    items         JSONB NOT NULL DEFAULT '[]',
    total         BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    CHECK (status <> 'POOLING' OR pool_group_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_orders_owner ON orders(owner_id);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_pool ON orders(pool_group_id);

CREATE TABLE IF NOT EXISTS pool_participants (
    id            UUID PRIMARY KEY,
    pool_group_id UUID NOT NULL REFERENCES pool_groups(id),
    order_id      UUID NOT NULL REFERENCES orders(id),
    quantity      BIGINT NOT NULL CHECK (quantity > 0),
    active        BOOLEAN NOT NULL DEFAULT TRUE,
    joined_at     TIMESTAMPTZ NOT NULL,
    left_at       TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_participants_active_order
    ON pool_participants(order_id) WHERE active;
CREATE INDEX IF NOT EXISTS idx_participants_pool_active
    ON pool_participants(pool_group_id) WHERE active;

CREATE TABLE IF NOT EXISTS order_history (
    id          UUID PRIMARY KEY,
    order_id    UUID NOT NULL REFERENCES orders(id),
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    actor_id    TEXT NOT NULL,
    note        TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_history_order ON order_history(order_id, created_at);
`

const migrationV11Up = `
CREATE TABLE IF NOT EXISTS actors (
    id         TEXT PRIMARY KEY,
    role       TEXT NOT NULL,
    token_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
`

// Migrate применяет недостающие миграции по порядку. Возвращает версию схемы после применения.
func Migrate(ctx context.Context, db *sql.DB) (string, error) {
	if _, err := db.ExecContext(ctx, schemaVersionTable); err != nil {
		return "", fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return "", err
	}

	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return "", fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}

		if _, err := db.ExecContext(ctx, m.Up); err != nil {
			return "", fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, m.Version); err != nil {
			return "", fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		current = v
	}

	return current.String(), nil
}

// currentVersion максимальная применённая версия, 0.0.0 если миграций не было
func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer rows.Close()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", raw, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return current, nil
}
