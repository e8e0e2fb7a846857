package orders

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core/internal/logging"
)

// AttemptObserver is told the outcome of every commit attempt.
type AttemptObserver interface {
	CommitAttempt(result string)
}

type CommitterConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	Now         func() time.Time
	NewID       func() string
	Observer    AttemptObserver
}

// Committer applies a validated order as one transaction: every stock
// decrement plus the order insert, or nothing.
type Committer struct {
	store Store
	cfg   CommitterConfig
}

func NewCommitter(store Store, cfg CommitterConfig) *Committer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = newOrderID
	}
	return &Committer{store: store, cfg: cfg}
}

// newOrderID returns a UUIDv7, which sorts by creation time.
func newOrderID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Commit persists the order for userID. Transient conflicts are retried up to
// MaxAttempts. Once an attempt has started it runs to commit or rollback even
// if ctx is cancelled; cancellation only stops further attempts.
func (c *Committer) Commit(ctx context.Context, userID string, v *ValidatedOrder) (*Receipt, error) {
	if v == nil || len(v.Lines) == 0 {
		return nil, emptyCart()
	}
	log := logging.FromContext(ctx)
	txCtx := context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		var r *Receipt
		r, err = c.commitOnce(txCtx, userID, v)
		c.observe(err)
		if err == nil {
			return r, nil
		}
		if !Retryable(err) || attempt == c.cfg.MaxAttempts {
			break
		}

		wait := c.cfg.Backoff * time.Duration(attempt)
		log.Warn("commit_retry",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, err
		case <-t.C:
		}
	}
	return nil, err
}

func (c *Committer) commitOnce(ctx context.Context, userID string, v *ValidatedOrder) (*Receipt, error) {
	now := c.cfg.Now()
	order := &Order{
		ID:        c.cfg.NewID(),
		UserID:    userID,
		Lines:     make([]OrderLine, 0, len(v.Lines)),
		Total:     decimal.Zero,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, l := range v.Lines {
		order.Lines = append(order.Lines, OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
		order.Total = order.Total.Add(l.Subtotal())
	}

	// Ascending product order keeps concurrent multi-product commits from
	// deadlocking on each other's row locks.
	byID := slices.Clone(v.Lines)
	slices.SortFunc(byID, func(a, b ValidatedLine) int { return strings.Compare(a.ProductID, b.ProductID) })

	remaining := make(map[string]StockLevel, len(byID))
	err := c.store.InTx(ctx, func(ctx context.Context, tx StockTx) error {
		for _, l := range byID {
			left, err := tx.Decrement(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			remaining[l.ProductID] = left
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return &Receipt{Order: order, Remaining: remaining}, nil
}

func (c *Committer) observe(err error) {
	if c.cfg.Observer == nil {
		return
	}
	result := "committed"
	if err != nil {
		result = strings.ToLower(string(KindOf(err)))
	}
	c.cfg.Observer.CommitAttempt(result)
}
