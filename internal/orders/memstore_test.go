package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_LockTimeoutIsTransient(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	require.NoError(t, s.PutProduct(context.Background(), product("P1", "1.00", 5)))

	holding := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(context.Background(), func(ctx context.Context, tx StockTx) error {
			if _, err := tx.Decrement(ctx, "P1", 1); err != nil {
				return err
			}
			close(holding)
			<-finish
			return nil
		})
	}()
	<-holding

	err := s.InTx(context.Background(), func(ctx context.Context, tx StockTx) error {
		_, err := tx.Decrement(ctx, "P1", 1)
		return err
	})
	assert.ErrorIs(t, err, ErrTransientConflict)
	assert.True(t, Retryable(err))

	close(finish)
	require.NoError(t, <-done)
	assert.Equal(t, 4, stockOf(t, s, "P1"))
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	s := newStore(t, product("P1", "1.00", 5), product("P2", "1.00", 5))
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx StockTx) error {
		if _, err := tx.Decrement(ctx, "P1", 2); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, &Order{ID: "o1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, stockOf(t, s, "P1"))
	_, err = s.GetOrder(context.Background(), "o1")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	// locks were released
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx StockTx) error {
		_, err := tx.Decrement(ctx, "P1", 5)
		return err
	}))
	assert.Equal(t, 0, stockOf(t, s, "P1"))
}

func TestMemoryStore_DecrementWithinOneTx(t *testing.T) {
	s := newStore(t, product("P1", "1.00", 5))
	start, err := s.GetStock(context.Background(), "P1")
	require.NoError(t, err)

	err = s.InTx(context.Background(), func(ctx context.Context, tx StockTx) error {
		l1, err := tx.Decrement(ctx, "P1", 2)
		require.NoError(t, err)
		assert.Equal(t, 3, l1.Quantity)

		l2, err := tx.Decrement(ctx, "P1", 3)
		require.NoError(t, err)
		assert.Equal(t, 0, l2.Quantity)
		assert.Greater(t, l2.Version, l1.Version)

		_, err = tx.Decrement(ctx, "P1", 1)
		var rej *RejectionError
		require.True(t, errors.As(err, &rej))
		assert.Equal(t, 0, rej.Available)

		_, err = tx.Decrement(ctx, "P1", 0)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		_, err = tx.Decrement(ctx, "NOPE", 1)
		assert.ErrorIs(t, err, ErrUnknownProduct)
		return nil
	})
	require.NoError(t, err)

	end, err := s.GetStock(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 0, end.Stock)
	assert.Equal(t, start.Version+2, end.Version)
}

func TestMemoryStore_SnapshotAndGetStock(t *testing.T) {
	s := newStore(t, product("P1", "1.00", 5), product("P2", "2.00", 0))

	snap, err := s.Snapshot(context.Background(), []string{"P2", "P1", "P1", "NOPE"})
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	assert.Equal(t, 0, snap["P2"].Stock)
	_, ok := snap["NOPE"]
	assert.False(t, ok)

	_, err = s.GetStock(context.Background(), "NOPE")
	assert.Equal(t, KindUnknownProduct, KindOf(err))
}

func TestMemoryStore_DuplicateOrderIDFailsWholeTx(t *testing.T) {
	s := newStore(t, product("P1", "1.00", 5))
	insert := func() error {
		return s.InTx(context.Background(), func(ctx context.Context, tx StockTx) error {
			if _, err := tx.Decrement(ctx, "P1", 1); err != nil {
				return err
			}
			return tx.InsertOrder(ctx, &Order{ID: "same", UserID: "u"})
		})
	}
	require.NoError(t, insert())
	err := insert()
	assert.Equal(t, KindStorageFailure, KindOf(err))
	assert.Equal(t, 4, stockOf(t, s, "P1"))
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	s := newStore(t, product("P1", "1.00", 5))
	c := NewCommitter(s, CommitterConfig{})
	r, err := c.Commit(context.Background(), "u1", &ValidatedOrder{Lines: []ValidatedLine{{ProductID: "P1", Quantity: 1}}})
	require.NoError(t, err)

	o, err := s.UpdateStatus(context.Background(), r.Order.ID, StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, o.Status)

	_, err = s.UpdateStatus(context.Background(), r.Order.ID, StatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.UpdateStatus(context.Background(), "missing", StatusShipped)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMemoryStore_ListOrdersReturnsHeaders(t *testing.T) {
	s := newStore(t, product("P1", "1.00", 5))
	c := NewCommitter(s, CommitterConfig{})
	r, err := c.Commit(context.Background(), "u1", &ValidatedOrder{Lines: []ValidatedLine{{ProductID: "P1", Quantity: 2}}})
	require.NoError(t, err)

	list, err := s.ListOrders(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.Order.ID, list[0].ID)
	assert.Nil(t, list[0].Lines)

	o, err := s.GetOrder(context.Background(), r.Order.ID)
	require.NoError(t, err)
	assert.Len(t, o.Lines, 1, "single-order reads still carry lines")
}

func TestMemoryStore_PutProductBumpsVersion(t *testing.T) {
	s := newStore(t, product("P1", "1.00", 5))
	before, err := s.GetStock(context.Background(), "P1")
	require.NoError(t, err)

	require.NoError(t, s.PutProduct(context.Background(), product("P1", "1.00", 50)))
	after, err := s.GetStock(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 50, after.Stock)
	assert.Greater(t, after.Version, before.Version)

	assert.Error(t, s.PutProduct(context.Background(), product("P2", "1.00", -1)))
}
