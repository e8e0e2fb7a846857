package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// products is owned by catalog management; this service only ever lowers
// stock. The CHECK keeps a bug anywhere from driving it negative.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		stock       INTEGER NOT NULL CHECK (stock >= 0),
		version     BIGINT NOT NULL DEFAULT 1,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		status      TEXT NOT NULL,
		total       NUMERIC(14,2) NOT NULL CHECK (total >= 0),
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id    TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		line_no     INTEGER NOT NULL,
		product_id  TEXT NOT NULL REFERENCES products(id),
		qty         INTEGER NOT NULL CHECK (qty > 0),
		unit_price  NUMERIC(12,2) NOT NULL,
		PRIMARY KEY (order_id, line_no)
	)`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
