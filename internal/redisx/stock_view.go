package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-order-core/internal/orders"
)

// setIfNewerScript writes qty/version only when version is greater than the
// stored one. Returns 1 when written.
var setIfNewerScript = redis.NewScript(`
local key = KEYS[1]
local qty = ARGV[1]
local version = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) >= version then
	return 0
end

redis.call('HSET', key, 'qty', qty, 'version', version)
redis.call('PEXPIRE', key, ttl)
return 1
`)

// StockView is a read-optimized copy of stock levels, fed by order.created
// events. It may lag the store but never moves backwards.
type StockView struct {
	rdb *redis.Client
}

func NewStockView(rdb *redis.Client) *StockView {
	return &StockView{rdb: rdb}
}

func (v *StockView) Set(ctx context.Context, productID string, lvl orders.StockLevel) (bool, error) {
	key := fmt.Sprintf(KeyStockView, productID)
	n, err := setIfNewerScript.Run(ctx, v.rdb, []string{key},
		lvl.Quantity, lvl.Version, TTLStockView.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Get reports ok=false when the product has no view entry.
func (v *StockView) Get(ctx context.Context, productID string) (orders.StockLevel, bool, error) {
	vals, err := v.rdb.HMGet(ctx, fmt.Sprintf(KeyStockView, productID), "qty", "version").Result()
	if err != nil {
		return orders.StockLevel{}, false, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return orders.StockLevel{}, false, nil
	}
	qty, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return orders.StockLevel{}, false, errors.New("stock view: bad qty for " + productID)
	}
	ver, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return orders.StockLevel{}, false, errors.New("stock view: bad version for " + productID)
	}
	return orders.StockLevel{Quantity: qty, Version: ver}, true, nil
}
