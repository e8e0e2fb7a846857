package orders

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
)

// Validator decides acceptance against one consistent read of the store and
// prices the order from stored prices. Its verdict is advisory: the Committer
// re-checks every quantity under lock.
type Validator struct {
	inv Inventory
}

func NewValidator(inv Inventory) *Validator {
	return &Validator{inv: inv}
}

type demand struct {
	productID string
	qty       int
}

// Validate returns the priced, per-product aggregated order or a
// *RejectionError. An empty cart is rejected without touching the store.
func (v *Validator) Validate(ctx context.Context, items []LineItem) (*ValidatedOrder, error) {
	if len(items) == 0 {
		return nil, emptyCart()
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, invalidQuantity(it.ProductID, it.Quantity)
		}
	}

	wanted := aggregate(items)
	ids := make([]string, 0, len(wanted))
	for _, d := range wanted {
		ids = append(ids, d.productID)
	}

	snap, err := v.inv.Snapshot(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, d := range wanted {
		if _, ok := snap[d.productID]; !ok {
			return nil, unknownProduct(d.productID)
		}
	}

	out := &ValidatedOrder{Lines: make([]ValidatedLine, 0, len(wanted)), Total: decimal.Zero}
	for _, d := range wanted {
		p := snap[d.productID]
		if d.qty > p.Stock {
			return nil, insufficientStock(d.productID, d.qty, p.Stock)
		}
		line := ValidatedLine{ProductID: d.productID, Quantity: d.qty, UnitPrice: p.Price}
		out.Lines = append(out.Lines, line)
		out.Total = out.Total.Add(line.Subtotal())
	}
	return out, nil
}

// aggregate sums repeated products, keeping first-appearance order. Sums
// saturate at math.MaxInt, which no stock level can cover.
func aggregate(items []LineItem) []demand {
	idx := make(map[string]int, len(items))
	out := make([]demand, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			if it.Quantity > math.MaxInt-out[i].qty {
				out[i].qty = math.MaxInt
			} else {
				out[i].qty += it.Quantity
			}
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, demand{productID: it.ProductID, qty: it.Quantity})
	}
	return out
}
