package redisx

import "time"

const (
	// Idempotent order placement: idem:order:create:{user_id}:{key} -> order_id | "pending"
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cached order: hash order_status:{order_id} {updated, order}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Stock view per product: hash stock_view:{product_id} {qty, version}
	KeyStockView = "stock_view:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLStockView   = 10 * time.Minute
)
