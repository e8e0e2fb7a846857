package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Version   int64 // bumped on every stock change
	UpdatedAt time.Time
}

// StockLevel is a product's quantity at a given version.
type StockLevel struct {
	Quantity int   `json:"qty"`
	Version  int64 `json:"version"`
}

// LineItem is one requested (product, quantity) pair of a cart.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ValidatedLine is the summed demand for one product with the price captured
// from the store at validation time.
type ValidatedLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l ValidatedLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ValidatedOrder is ready to commit. Lines hold one entry per product, in the
// order each product first appeared in the cart.
type ValidatedOrder struct {
	Lines []ValidatedLine
	Total decimal.Decimal
}

type OrderLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Lines     []OrderLine     `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Receipt is the result of a committed order: the order itself plus the stock
// left for every product it decremented.
type Receipt struct {
	Order     *Order
	Remaining map[string]StockLevel
}

// Caller is the identity handed over by the authentication gate.
type Caller struct {
	UserID  string
	IsAdmin bool
}
