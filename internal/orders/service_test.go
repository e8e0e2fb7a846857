package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ariefcatur/go-order-core/internal/logging"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) OrderCreated(ctx context.Context, r *Receipt) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockPublisher) StatusChanged(ctx context.Context, o *Order, by string) error {
	return m.Called(ctx, o, by).Error(0)
}

type placementRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (p *placementRecorder) Placement(outcome string, _ time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, outcome)
}

func newService(t *testing.T, pub EventPublisher, products ...Product) (*Service, *MemoryStore, *placementRecorder) {
	t.Helper()
	s := newStore(t, products...)
	rec := &placementRecorder{}
	svc := NewService(NewValidator(s), NewCommitter(s, CommitterConfig{MaxAttempts: 3}), s, pub, rec)
	return svc, s, rec
}

var buyer = Caller{UserID: "u1"}

func TestPlaceOrder_PublishesAndRecords(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("OrderCreated", mock.Anything, mock.MatchedBy(func(r *Receipt) bool {
		return r.Order.UserID == "u1" && r.Remaining["P1"].Quantity == 0
	})).Return(nil).Once()

	svc, _, rec := newService(t, pub, product("P1", "10.00", 5))
	r, err := svc.PlaceOrder(context.Background(), buyer, []LineItem{{ProductID: "P1", Quantity: 5}})
	require.NoError(t, err)
	assert.Equal(t, "50.00", r.Order.Total.StringFixed(2))

	_, err = svc.PlaceOrder(context.Background(), buyer, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)

	pub.AssertExpectations(t)
	assert.Equal(t, []string{OutcomeCommitted, OutcomeRejected}, rec.outcomes)
}

func TestPlaceOrder_PublishFailureKeepsCommit(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("OrderCreated", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	core, logs := observer.New(zap.WarnLevel)
	ctx := logging.ContextWithLogger(context.Background(), zap.New(core))

	svc, s, _ := newService(t, pub, product("P1", "1.00", 2))
	r, err := svc.PlaceOrder(ctx, buyer, []LineItem{{ProductID: "P1", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, stockOf(t, s, "P1"))

	_, err = s.GetOrder(context.Background(), r.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("order_event_publish_failed").Len())
}

func TestPlaceOrder_StorageFailureIsAbortedAndLoggedAsError(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logging.ContextWithLogger(context.Background(), zap.New(core))

	rec := &placementRecorder{}
	svc := NewService(NewValidator(failingInventory{}), NewCommitter(newStore(t), CommitterConfig{}), nil, nil, rec)
	_, err := svc.PlaceOrder(ctx, buyer, []LineItem{{ProductID: "P1", Quantity: 1}})
	assert.Equal(t, KindStorageFailure, KindOf(err))
	assert.Equal(t, []string{OutcomeAborted}, rec.outcomes)

	entries := logs.FilterMessage("place_order_done").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "STORAGE_FAILURE", entries[0].ContextMap()["error_kind"])
}

func TestGetOrder_HidesOtherUsersOrders(t *testing.T) {
	svc, _, _ := newService(t, nil, product("P1", "1.00", 5))
	r, err := svc.PlaceOrder(context.Background(), buyer, []LineItem{{ProductID: "P1", Quantity: 1}})
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), Caller{UserID: "u2"}, r.Order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	o, err := svc.GetOrder(context.Background(), Caller{UserID: "ops", IsAdmin: true}, r.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Order.ID, o.ID)

	mine, err := svc.ListOrders(context.Background(), Caller{UserID: "u2"})
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestChangeStatus(t *testing.T) {
	pub := &mockPublisher{}
	svc, _, _ := newService(t, pub, product("P1", "1.00", 5))
	pub.On("OrderCreated", mock.Anything, mock.Anything).Return(nil)
	r, err := svc.PlaceOrder(context.Background(), buyer, []LineItem{{ProductID: "P1", Quantity: 1}})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), buyer, r.Order.ID, StatusProcessing)
	assert.ErrorIs(t, err, ErrForbidden)

	admin := Caller{UserID: "ops", IsAdmin: true}
	_, err = svc.ChangeStatus(context.Background(), admin, r.Order.ID, Status("LOST"))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	pub.On("StatusChanged", mock.Anything, mock.MatchedBy(func(o *Order) bool { return o.Status == StatusCancelled }), "ops").
		Return(nil).Once()
	o, err := svc.ChangeStatus(context.Background(), admin, r.Order.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	pub.AssertExpectations(t)
}
