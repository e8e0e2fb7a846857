package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres error codes that mean "try again": serialization_failure,
// deadlock_detected, lock_not_available (lock_timeout expired).
var transientCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

// PgStore is the Postgres Inventory Store. Decrements take a row lock
// (SELECT ... FOR UPDATE) that is held until the transaction ends.
type PgStore struct {
	DB          *pgxpool.Pool
	LockTimeout time.Duration
}

func NewPgStore(db *pgxpool.Pool, lockTimeout time.Duration) *PgStore {
	return &PgStore{DB: db, LockTimeout: lockTimeout}
}

func (s *PgStore) GetStock(ctx context.Context, productID string) (Product, error) {
	var p Product
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, price, stock, version, updated_at FROM products WHERE id=$1`, productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Version, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, unknownProduct(productID)
	}
	if err != nil {
		return Product{}, classify("get stock", err)
	}
	return p, nil
}

// Snapshot is a single statement, so every row comes from the same snapshot.
func (s *PgStore) Snapshot(ctx context.Context, productIDs []string) (map[string]Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, price, stock, version, updated_at FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, classify("snapshot", err)
	}
	defer rows.Close()

	out := make(map[string]Product, len(productIDs))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Version, &p.UpdatedAt); err != nil {
			return nil, classify("snapshot scan", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, classify("snapshot", err)
	}
	return out, nil
}

func (s *PgStore) InTx(ctx context.Context, fn func(ctx context.Context, tx StockTx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeoutSetting(s.LockTimeout)); err != nil {
			return classify("set lock_timeout", err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err // rollback via defer
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

// lockTimeoutSetting renders d in whole milliseconds, rounding up. Postgres
// reads "0ms" as no timeout at all.
func lockTimeoutSetting(d time.Duration) string {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("%dms", int64(ms))
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Decrement(ctx context.Context, productID string, amount int) (StockLevel, error) {
	if amount <= 0 {
		return StockLevel{}, invalidQuantity(productID, amount)
	}
	var stock int
	err := t.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{}, unknownProduct(productID)
	}
	if err != nil {
		return StockLevel{}, classify("lock product", err)
	}
	if stock < amount {
		return StockLevel{}, insufficientStock(productID, amount, stock)
	}

	var lvl StockLevel
	err = t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, version = version + 1, updated_at = now()
		WHERE id=$1 AND stock >= $2
		RETURNING stock, version`, productID, amount,
	).Scan(&lvl.Quantity, &lvl.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		// unreachable while the row lock is held
		return StockLevel{}, insufficientStock(productID, amount, stock)
	}
	if err != nil {
		return StockLevel{}, classify("decrement", err)
	}
	return lvl, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		o.ID, o.UserID, string(o.Status), o.Total, o.CreatedAt,
	)
	if err != nil {
		return classify("insert order", err)
	}

	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`
			INSERT INTO order_lines(order_id, line_no, product_id, qty, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, i+1, l.ProductID, l.Quantity, l.UnitPrice,
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return classify("insert order lines", err)
	}
	return nil
}

// classify turns a driver error into ErrTransientConflict or ErrStorageFailure.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s: %s (%s)", ErrTransientConflict, op, pgErr.Message, pgErr.Code)
	}
	return storageFailure(op, err)
}
