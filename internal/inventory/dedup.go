package inventory

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-order-core/internal/redisx"
)

// RedisDedup is a Deduper backed by SETNX with TTLDedup.
type RedisDedup struct{ RDB *redis.Client }

func (d RedisDedup) MarkNew(ctx context.Context, key string) (bool, error) {
	return d.RDB.SetNX(ctx, key, "1", redisx.TTLDedup).Result()
}

func (d RedisDedup) Forget(ctx context.Context, key string) error {
	return d.RDB.Del(ctx, key).Err()
}
