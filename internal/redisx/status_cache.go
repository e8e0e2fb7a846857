package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-order-core/internal/orders"
)

// setIfNotOlderScript stores an order unless the cached copy carries a later
// updated_at. Returns 1 when written.
var setIfNotOlderScript = redis.NewScript(`
local key = KEYS[1]
local updated = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'updated')
if current and tonumber(current) > updated then
	return 0
end

redis.call('HSET', key, 'updated', ARGV[1], 'order', ARGV[2])
redis.call('PEXPIRE', key, tonumber(ARGV[3]))
return 1
`)

// StatusCache keeps recently read orders so GET /orders/{id} skips the
// database. The database stays the source of truth.
type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb}
}

// Get reports ok=false on a miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (*orders.Order, bool, error) {
	b, err := c.rdb.HGet(ctx, fmt.Sprintf(KeyOrderStatus, orderID), "order").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, false, fmt.Errorf("decode cached order %s: %w", orderID, err)
	}
	return &o, true, nil
}

// Set caches o. A copy read before a later status change never replaces
// the newer one.
func (c *StatusCache) Set(ctx context.Context, o *orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return setIfNotOlderScript.Run(ctx, c.rdb, []string{fmt.Sprintf(KeyOrderStatus, o.ID)},
		o.UpdatedAt.UnixMicro(), b, TTLStatusCache.Milliseconds(),
	).Err()
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}
