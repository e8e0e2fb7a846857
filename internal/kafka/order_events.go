package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/go-order-core/internal/orders"
)

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

// OrderEvents wraps order changes in an Envelope and hands them to the
// producer, keyed by order id.
type OrderEvents struct {
	pub     publisher
	service string
	now     func() time.Time
}

func NewOrderEvents(p *Producer, service string) *OrderEvents {
	return newOrderEvents(p, service)
}

func newOrderEvents(p publisher, service string) *OrderEvents {
	return &OrderEvents{pub: p, service: service, now: func() time.Time { return time.Now().UTC() }}
}

func (e *OrderEvents) OrderCreated(ctx context.Context, r *orders.Receipt) error {
	return e.publish(ctx, orders.TopicOrderCreated, orders.EventOrderCreated, r.Order.ID,
		orders.NewOrderCreatedPayload(r))
}

func (e *OrderEvents) StatusChanged(ctx context.Context, o *orders.Order, by string) error {
	return e.publish(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, o.ID,
		orders.OrderStatusChangedPayload{OrderID: o.ID, Status: o.Status, ByAdmin: by})
}

func (e *OrderEvents) publish(ctx context.Context, topic, eventType, orderID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    e.now(),
		Producer:      e.service,
		CorrelationID: orderID,
		Payload:       body,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.pub.Publish(ctx, topic, orders.PartitionKey(orderID), value,
		kafka.Header{Key: HeaderEventType, Value: []byte(eventType)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte("1")},
	)
}
