package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

// OrderCreatedPayload.Remaining is the stock left per product right after the
// commit; the stock-view projector relies on it.
type OrderCreatedPayload struct {
	OrderID   string                `json:"order_id"`
	UserID    string                `json:"user_id"`
	Items     []ItemPrice           `json:"items"`
	Total     decimal.Decimal       `json:"total"`
	Remaining map[string]StockLevel `json:"remaining"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
	ByAdmin string `json:"by_admin"`
}

func NewOrderCreatedPayload(r *Receipt) OrderCreatedPayload {
	items := make([]ItemPrice, 0, len(r.Order.Lines))
	for _, l := range r.Order.Lines {
		items = append(items, ItemPrice{ProductID: l.ProductID, Qty: l.Quantity, Price: l.UnitPrice})
	}
	return OrderCreatedPayload{
		OrderID:   r.Order.ID,
		UserID:    r.Order.UserID,
		Items:     items,
		Total:     r.Order.Total,
		Remaining: r.Remaining,
	}
}
