package orders

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newStore returns a MemoryStore holding the given product -> (price, stock).
func newStore(t testing.TB, products ...Product) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(time.Second)
	for _, p := range products {
		require.NoError(t, s.PutProduct(context.Background(), p))
	}
	return s
}

func product(id, p string, stock int) Product {
	return Product{ID: id, Name: "product " + id, Price: price(p), Stock: stock}
}

func stockOf(t testing.TB, s Inventory, id string) int {
	t.Helper()
	p, err := s.GetStock(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

// countingInventory records every storage read.
type countingInventory struct {
	Inventory
	snapshots atomic.Int32
	gets      atomic.Int32
}

func (c *countingInventory) Snapshot(ctx context.Context, ids []string) (map[string]Product, error) {
	c.snapshots.Add(1)
	return c.Inventory.Snapshot(ctx, ids)
}

func (c *countingInventory) GetStock(ctx context.Context, id string) (Product, error) {
	c.gets.Add(1)
	return c.Inventory.GetStock(ctx, id)
}

// flakyStore fails the first n transactions with err before delegating.
type flakyStore struct {
	*MemoryStore
	mu    sync.Mutex
	fails int
	err   error
	calls int
}

func (f *flakyStore) InTx(ctx context.Context, fn func(context.Context, StockTx) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.fails
	f.mu.Unlock()
	if fail {
		return f.err
	}
	return f.MemoryStore.InTx(ctx, fn)
}

func (f *flakyStore) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type attemptRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *attemptRecorder) CommitAttempt(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *attemptRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("order-%04d", n.Add(1)) }
}
