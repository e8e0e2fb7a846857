package orders

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Each product has a single-slot lock that
// a transaction holds from its first Decrement until it ends, so decrements of
// one product are serialized while unrelated products proceed in parallel.
type MemoryStore struct {
	lockTimeout time.Duration

	mu       sync.RWMutex // guards the maps below, not product contents
	products map[string]*memProduct
	orders   map[string]*Order
	byTime   []string
}

type memProduct struct {
	id   string
	slot chan struct{}
	p    Product
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &MemoryStore{
		lockTimeout: lockTimeout,
		products:    make(map[string]*memProduct),
		orders:      make(map[string]*Order),
	}
}

// PutProduct inserts or replaces a catalog record. It stands in for the
// external catalog management in dev mode and tests.
func (s *MemoryStore) PutProduct(ctx context.Context, p Product) error {
	if p.Stock < 0 {
		return fmt.Errorf("orders: negative stock for %s", p.ID)
	}
	p.UpdatedAt = time.Now().UTC()
	if p.Version == 0 {
		p.Version = 1
	}

	s.mu.Lock()
	mp, ok := s.products[p.ID]
	if !ok {
		s.products[p.ID] = &memProduct{id: p.ID, slot: make(chan struct{}, 1), p: p}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.acquire(ctx, mp); err != nil {
		return err
	}
	defer release(mp)
	if p.Version <= mp.p.Version {
		p.Version = mp.p.Version + 1
	}
	mp.p = p
	return nil
}

func (s *MemoryStore) lookup(id string) (*memProduct, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mp, ok := s.products[id]
	return mp, ok
}

func (s *MemoryStore) acquire(ctx context.Context, mp *memProduct) error {
	t := time.NewTimer(s.lockTimeout)
	defer t.Stop()
	select {
	case mp.slot <- struct{}{}:
		return nil
	case <-t.C:
		return fmt.Errorf("%w: lock wait exceeded %s on %s", ErrTransientConflict, s.lockTimeout, mp.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func release(mp *memProduct) { <-mp.slot }

func (s *MemoryStore) GetStock(ctx context.Context, productID string) (Product, error) {
	mp, ok := s.lookup(productID)
	if !ok {
		return Product{}, unknownProduct(productID)
	}
	if err := s.acquire(ctx, mp); err != nil {
		return Product{}, err
	}
	defer release(mp)
	return mp.p, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, productIDs []string) (map[string]Product, error) {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*memProduct, 0, len(ids))
	defer func() {
		for _, mp := range held {
			release(mp)
		}
	}()
	// All slots are held at once so the result reflects a single instant.
	for _, id := range ids {
		mp, ok := s.lookup(id)
		if !ok {
			continue
		}
		if err := s.acquire(ctx, mp); err != nil {
			return nil, err
		}
		held = append(held, mp)
	}

	out := make(map[string]Product, len(held))
	for _, mp := range held {
		out[mp.p.ID] = mp.p
	}
	return out, nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx StockTx) error) error {
	tx := &memTx{
		store:  s,
		held:   make(map[string]*memProduct),
		staged: make(map[string]StockLevel),
	}
	defer tx.releaseAll()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.apply()
}

type memTx struct {
	store  *MemoryStore
	held   map[string]*memProduct
	staged map[string]StockLevel
	orders []*Order
}

func (tx *memTx) Decrement(ctx context.Context, productID string, amount int) (StockLevel, error) {
	if amount <= 0 {
		return StockLevel{}, invalidQuantity(productID, amount)
	}
	mp, ok := tx.held[productID]
	if !ok {
		mp, ok = tx.store.lookup(productID)
		if !ok {
			return StockLevel{}, unknownProduct(productID)
		}
		if err := tx.store.acquire(ctx, mp); err != nil {
			return StockLevel{}, err
		}
		tx.held[productID] = mp
	}

	cur, ok := tx.staged[productID]
	if !ok {
		cur = StockLevel{Quantity: mp.p.Stock, Version: mp.p.Version}
	}
	if amount > cur.Quantity {
		return StockLevel{}, insufficientStock(productID, amount, cur.Quantity)
	}
	next := StockLevel{Quantity: cur.Quantity - amount, Version: cur.Version + 1}
	tx.staged[productID] = next
	return next, nil
}

func (tx *memTx) InsertOrder(_ context.Context, o *Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("orders: insert order: missing id")
	}
	tx.orders = append(tx.orders, cloneOrder(o))
	return nil
}

func (tx *memTx) apply() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range tx.orders {
		if _, dup := s.orders[o.ID]; dup {
			return storageFailure("insert order", fmt.Errorf("duplicate order id %s", o.ID))
		}
	}

	now := time.Now().UTC()
	for id, lvl := range tx.staged {
		mp := tx.held[id]
		mp.p.Stock = lvl.Quantity
		mp.p.Version = lvl.Version
		mp.p.UpdatedAt = now
	}
	for _, o := range tx.orders {
		s.orders[o.ID] = o
		s.byTime = append(s.byTime, o.ID)
	}
	return nil
}

func (tx *memTx) releaseAll() {
	for id, mp := range tx.held {
		release(mp)
		delete(tx.held, id)
	}
}

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// ListOrders returns order headers newest first; lines are not loaded.
// An empty userID lists every order.
func (s *MemoryStore) ListOrders(_ context.Context, userID string) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0)
	for i := len(s.byTime) - 1; i >= 0; i-- {
		o := s.orders[s.byTime[i]]
		if userID != "" && o.UserID != userID {
			continue
		}
		h := *o
		h.Lines = nil
		out = append(out, h)
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, orderID string, to Status) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return cloneOrder(o), nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	snap, err := s.Snapshot(ctx, ids)
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, snap[id])
	}
	return out, nil
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Lines = slices.Clone(o.Lines)
	return &c
}
