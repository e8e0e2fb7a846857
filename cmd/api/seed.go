package main

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-core/internal/orders"
)

// seedCatalog fills the in-memory store with a small demo catalog.
func seedCatalog(ctx context.Context, s *orders.MemoryStore) error {
	catalog := []orders.Product{
		{ID: "P1", Name: "Ceramic Mug", Price: decimal.RequireFromString("10.00"), Stock: 5},
		{ID: "P2", Name: "Notebook A5", Price: decimal.RequireFromString("4.25"), Stock: 120},
		{ID: "P3", Name: "Fountain Pen", Price: decimal.RequireFromString("32.90"), Stock: 12},
		{ID: "P4", Name: "Desk Lamp", Price: decimal.RequireFromString("58.00"), Stock: 3},
	}
	for _, p := range catalog {
		if err := s.PutProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
