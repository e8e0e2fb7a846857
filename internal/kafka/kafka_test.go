package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ariefcatur/go-order-core/internal/orders"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) snapshot() ([]kafka.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...), w.closed
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 16, nil)
	p.Start(context.Background())

	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish(ctx, "topic-x", []byte(k), []byte("v-"+k)))
	}
	p.Close()

	msgs, closed := w.snapshot()
	assert.True(t, closed)
	require.Len(t, msgs, 3)
	assert.Equal(t, "topic-x", msgs[0].Topic)
	assert.Equal(t, []byte("a"), msgs[0].Key)

	assert.ErrorIs(t, p.Publish(ctx, "topic-x", nil, nil), ErrProducerClosed)
	p.Close() // idempotent
}

func TestProducer_StopsWithContext(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.NoError(t, p.Publish(ctx, "t", []byte("k"), []byte("v")))
	cancel()
	<-p.done

	_, closed := w.snapshot()
	assert.True(t, closed)
}

func TestProducer_PublishHonoursContextWhenFull(t *testing.T) {
	p := newProducer(&fakeWriter{}, 1, nil) // not started, nothing drains
	require.NoError(t, p.Publish(context.Background(), "t", nil, []byte("1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Publish(ctx, "t", nil, []byte("2"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	p.Close()
}

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsAfterHandling(t *testing.T) {
	r := &fakeReader{msgs: make(chan kafka.Message, 8)}
	c := newConsumer(r, 2, nil)
	c.backoff = time.Millisecond

	var mu sync.Mutex
	calls := map[int64]int{}
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls[m.Offset]++
		if m.Offset == 2 {
			return errors.New("boom")
		}
		return nil
	}

	for off := int64(1); off <= 3; off++ {
		r.msgs <- kafka.Message{Topic: "t", Offset: off}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []int64{1, 2, 3}, r.commits())
	mu.Lock()
	assert.Equal(t, 3, calls[2], "failing message is retried before being dropped")
	assert.Equal(t, 1, calls[1])
	mu.Unlock()
	assert.True(t, r.closed)
}

type capturedMessage struct {
	topic   string
	key     []byte
	value   []byte
	headers []kafka.Header
}

type fakePublisher struct{ got []capturedMessage }

func (p *fakePublisher) Publish(_ context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	p.got = append(p.got, capturedMessage{topic, key, value, headers})
	return nil
}

func TestOrderEvents_OrderCreated(t *testing.T) {
	pub := &fakePublisher{}
	ev := newOrderEvents(pub, "order-api")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev.now = func() time.Time { return at }

	r := &orders.Receipt{
		Order: &orders.Order{
			ID:     "o-1",
			UserID: "u-1",
			Lines:  []orders.OrderLine{{ProductID: "P1", Quantity: 5, UnitPrice: decimal.RequireFromString("10.00")}},
			Total:  decimal.RequireFromString("50.00"),
			Status: orders.StatusPending,
		},
		Remaining: map[string]orders.StockLevel{"P1": {Quantity: 0, Version: 2}},
	}
	require.NoError(t, ev.OrderCreated(context.Background(), r))
	require.Len(t, pub.got, 1)

	m := pub.got[0]
	assert.Equal(t, orders.TopicOrderCreated, m.topic)
	assert.Equal(t, []byte("o-1"), m.key)
	assert.Equal(t, orders.EventOrderCreated, Header(kafka.Message{Headers: m.headers}, HeaderEventType))

	env, err := DecodeEnvelope(m.value)
	require.NoError(t, err)
	assert.Equal(t, orders.EventOrderCreated, env.EventType)
	assert.Equal(t, "order-api", env.Producer)
	assert.Equal(t, "o-1", env.CorrelationID)
	assert.True(t, at.Equal(env.OccurredAt))
	assert.NotEmpty(t, env.EventID)

	p, err := UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.True(t, decimal.RequireFromString("50").Equal(p.Total))
	assert.Equal(t, orders.StockLevel{Quantity: 0, Version: 2}, p.Remaining["P1"])
	require.Len(t, p.Items, 1)
	assert.Equal(t, 5, p.Items[0].Qty)
}

func TestOrderEvents_StatusChanged(t *testing.T) {
	pub := &fakePublisher{}
	ev := newOrderEvents(pub, "order-api")

	require.NoError(t, ev.StatusChanged(context.Background(), &orders.Order{ID: "o-9", Status: orders.StatusShipped}, "admin-1"))
	require.Len(t, pub.got, 1)
	assert.Equal(t, orders.TopicOrderStatusChanged, pub.got[0].topic)

	env, err := DecodeEnvelope(pub.got[0].value)
	require.NoError(t, err)
	p, err := UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, p.Status)
	assert.Equal(t, "admin-1", p.ByAdmin)
}
