package inventory

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-core/internal/kafka"
	"github.com/ariefcatur/go-order-core/internal/orders"
	"github.com/ariefcatur/go-order-core/internal/redisx"
)

// Deduper remembers processed event ids. MarkNew reports true the first time
// it sees key.
type Deduper interface {
	MarkNew(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type StockView interface {
	Set(ctx context.Context, productID string, lvl orders.StockLevel) (bool, error)
}

// Service projects order.created events into the stock view.
type Service struct {
	Dedup       Deduper
	View        StockView
	ServiceName string
	Log         *zap.Logger
}

// HandleOrderCreated is installed as the consumer handler.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		log.Warn("projector_bad_message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil // poison message, retrying will not help
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		log.Warn("projector_bad_payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := s.Dedup.MarkNew(ctx, dkey)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	for pid, lvl := range p.Remaining {
		if _, err := s.View.Set(ctx, pid, lvl); err != nil {
			// let a redelivery finish the job
			_ = s.Dedup.Forget(ctx, dkey)
			return fmt.Errorf("stock view %s: %w", pid, err)
		}
	}
	log.Debug("stock_view_updated", zap.String("order_id", p.OrderID), zap.Int("products", len(p.Remaining)))
	return nil
}
