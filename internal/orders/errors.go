package orders

import (
	"errors"
	"fmt"
)

// Kind is the caller-facing classification of a failed placement.
type Kind string

const (
	KindEmptyCart         Kind = "EMPTY_CART"
	KindInvalidQuantity   Kind = "INVALID_QUANTITY"
	KindUnknownProduct    Kind = "UNKNOWN_PRODUCT"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindTransientConflict Kind = "TRANSIENT_CONFLICT"
	KindStorageFailure    Kind = "STORAGE_FAILURE"
)

var (
	ErrEmptyCart         = errors.New("orders: cart is empty")
	ErrInvalidQuantity   = errors.New("orders: quantity must be greater than zero")
	ErrUnknownProduct    = errors.New("orders: product not found")
	ErrInsufficientStock = errors.New("orders: insufficient stock")
	ErrTransientConflict = errors.New("orders: transient conflict, retry later")
	ErrStorageFailure    = errors.New("orders: storage failure")
	ErrOrderNotFound     = errors.New("orders: order not found")
	ErrInvalidTransition = errors.New("orders: invalid status transition")
)

// RejectionError carries the itemized detail a caller needs to fix and
// resubmit a cart.
type RejectionError struct {
	Kind      Kind
	ProductID string
	Requested int
	Available int
	Err       error
}

func (e *RejectionError) Error() string {
	switch e.Kind {
	case KindInsufficientStock:
		return fmt.Sprintf("%v: product %s requested %d, available %d", e.Err, e.ProductID, e.Requested, e.Available)
	case KindUnknownProduct:
		return fmt.Sprintf("%v: %s", e.Err, e.ProductID)
	case KindInvalidQuantity:
		return fmt.Sprintf("%v: product %s quantity %d", e.Err, e.ProductID, e.Requested)
	default:
		return e.Err.Error()
	}
}

func (e *RejectionError) Unwrap() error { return e.Err }

func emptyCart() error {
	return &RejectionError{Kind: KindEmptyCart, Err: ErrEmptyCart}
}

func invalidQuantity(productID string, qty int) error {
	return &RejectionError{Kind: KindInvalidQuantity, ProductID: productID, Requested: qty, Err: ErrInvalidQuantity}
}

func unknownProduct(productID string) error {
	return &RejectionError{Kind: KindUnknownProduct, ProductID: productID, Err: ErrUnknownProduct}
}

func insufficientStock(productID string, requested, available int) error {
	return &RejectionError{
		Kind:      KindInsufficientStock,
		ProductID: productID,
		Requested: requested,
		Available: available,
		Err:       ErrInsufficientStock,
	}
}

// KindOf maps any error returned by this package to its caller-facing kind.
// Anything unclassified is a storage failure.
func KindOf(err error) Kind {
	var rej *RejectionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rej):
		return rej.Kind
	case errors.Is(err, ErrEmptyCart):
		return KindEmptyCart
	case errors.Is(err, ErrInvalidQuantity):
		return KindInvalidQuantity
	case errors.Is(err, ErrUnknownProduct):
		return KindUnknownProduct
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrTransientConflict):
		return KindTransientConflict
	default:
		return KindStorageFailure
	}
}

// Retryable reports whether the core may transparently retry err.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientConflict)
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
