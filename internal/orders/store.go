package orders

import "context"

// Inventory is the read side of the stock source of truth.
type Inventory interface {
	// GetStock fails with ErrUnknownProduct if the product does not exist.
	GetStock(ctx context.Context, productID string) (Product, error)
	// Snapshot reads every listed product in one consistent read. Missing
	// products are simply absent from the result.
	Snapshot(ctx context.Context, productIDs []string) (map[string]Product, error)
}

// StockTx is one atomic unit of work. Nothing it does is visible to other
// callers until the surrounding InTx returns nil.
type StockTx interface {
	// Decrement subtracts amount and returns the new level. It fails with a
	// *RejectionError of kind INSUFFICIENT_STOCK when amount exceeds the
	// current quantity. The product stays locked against other decrements
	// until the transaction ends.
	Decrement(ctx context.Context, productID string, amount int) (StockLevel, error)
	InsertOrder(ctx context.Context, o *Order) error
}

// Store is the Inventory Store: consistent reads plus all-or-nothing writes.
// If fn returns an error every write made through the StockTx is discarded.
type Store interface {
	Inventory
	InTx(ctx context.Context, fn func(ctx context.Context, tx StockTx) error) error
}

// OrderRepository is the read and admin side of persisted orders.
type OrderRepository interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// ListOrders returns headers only, newest first.
	ListOrders(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error)
	ListProducts(ctx context.Context) ([]Product, error)
}
