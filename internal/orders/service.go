package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core/internal/logging"
)

var ErrForbidden = errors.New("orders: admin role required")

// EventPublisher announces committed changes. Failures are logged and never
// undo a commit.
type EventPublisher interface {
	OrderCreated(ctx context.Context, r *Receipt) error
	StatusChanged(ctx context.Context, o *Order, by string) error
}

type PlacementObserver interface {
	Placement(outcome string, took time.Duration)
}

const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeAborted   = "aborted"
)

type Service struct {
	validator *Validator
	committer *Committer
	repo      OrderRepository
	events    EventPublisher
	observer  PlacementObserver
	tracer    trace.Tracer
}

func NewService(v *Validator, c *Committer, repo OrderRepository, events EventPublisher, obs PlacementObserver) *Service {
	return &Service{
		validator: v,
		committer: c,
		repo:      repo,
		events:    events,
		observer:  obs,
		tracer:    otel.Tracer("github.com/ariefcatur/go-order-core/internal/orders"),
	}
}

// PlaceOrder runs Received → Validating → {Rejected} | Committing →
// {Committed, Aborted}. Only the terminal outcome is observable.
func (s *Service) PlaceOrder(ctx context.Context, caller Caller, items []LineItem) (_ *Receipt, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.PlaceOrder",
		trace.WithAttributes(
			attribute.String("user.id", caller.UserID),
			attribute.Int("cart.lines", len(items)),
		),
	)
	log := logging.FromContext(ctx).With(zap.String("user_id", caller.UserID))
	start := time.Now()
	outcome := OutcomeCommitted
	var receipt *Receipt

	defer func() {
		took := time.Since(start)
		fields := []zap.Field{
			zap.String("outcome", outcome),
			zap.Duration("latency", took),
		}
		if err != nil {
			kind := KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
			fields = append(fields, zap.String("error_kind", string(kind)), zap.Error(err))
		} else {
			span.SetStatus(codes.Ok, outcome)
			fields = append(fields, zap.String("order_id", receipt.Order.ID), zap.String("total", receipt.Order.Total.StringFixed(2)))
		}
		span.SetAttributes(attribute.String("order.outcome", outcome))
		span.End()

		if s.observer != nil {
			s.observer.Placement(outcome, took)
		}
		if KindOf(err) == KindStorageFailure {
			log.Error("place_order_done", fields...)
		} else {
			log.Info("place_order_done", fields...)
		}
	}()

	validated, err := s.validator.Validate(ctx, items)
	if err != nil {
		outcome = OutcomeRejected
		if k := KindOf(err); k == KindTransientConflict || k == KindStorageFailure {
			outcome = OutcomeAborted
		}
		return nil, err
	}

	receipt, err = s.committer.Commit(ctx, caller.UserID, validated)
	if err != nil {
		outcome = OutcomeAborted
		return nil, err
	}

	if s.events != nil {
		if perr := s.events.OrderCreated(context.WithoutCancel(ctx), receipt); perr != nil {
			log.Warn("order_event_publish_failed", zap.String("order_id", receipt.Order.ID), zap.Error(perr))
		}
	}
	return receipt, nil
}

// GetOrder hides other users' orders behind ErrOrderNotFound unless the caller
// is an admin.
func (s *Service) GetOrder(ctx context.Context, caller Caller, orderID string) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin && o.UserID != caller.UserID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, caller Caller) ([]Order, error) {
	if caller.IsAdmin {
		return s.repo.ListOrders(ctx, "")
	}
	return s.repo.ListOrders(ctx, caller.UserID)
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// ChangeStatus is the admin-only keyed status update.
func (s *Service) ChangeStatus(ctx context.Context, caller Caller, orderID string, to Status) (*Order, error) {
	if !caller.IsAdmin {
		return nil, ErrForbidden
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	o, err := s.repo.UpdateStatus(ctx, orderID, to)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		if perr := s.events.StatusChanged(context.WithoutCancel(ctx), o, caller.UserID); perr != nil {
			logging.FromContext(ctx).Warn("status_event_publish_failed", zap.String("order_id", o.ID), zap.Error(perr))
		}
	}
	return o, nil
}
