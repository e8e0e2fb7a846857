package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// ClaimState is what Claim found for an idempotency key.
type ClaimState int

const (
	// Claimed: the key was free and now belongs to this request.
	Claimed ClaimState = iota
	// InFlight: another request with the same key has not finished yet.
	InFlight
	// Done: an earlier request already placed the order.
	Done
)

// Idempotency guards order placement against client retries. Keys are
// scoped per user so two users can never collide on the same header value.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

func idemKey(userID, key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, userID, key)
}

// Claim reserves key for userID. When the state is Done the returned string
// is the order id of the earlier placement.
func (i *Idempotency) Claim(ctx context.Context, userID, key string) (ClaimState, string, error) {
	k := idemKey(userID, key)
	ok, err := i.rdb.SetNX(ctx, k, pendingMarker, TTLIdempotency).Result()
	if err != nil {
		return 0, "", err
	}
	if ok {
		return Claimed, "", nil
	}

	v, err := i.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// released or expired between SETNX and GET
		return InFlight, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	if v == pendingMarker {
		return InFlight, "", nil
	}
	return Done, v, nil
}

// Complete records the placed order under a claimed key.
func (i *Idempotency) Complete(ctx context.Context, userID, key, orderID string) error {
	return i.rdb.Set(ctx, idemKey(userID, key), orderID, TTLIdempotency).Err()
}

// Release frees a claimed key so the client may retry with it.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	return i.rdb.Del(ctx, idemKey(userID, key)).Err()
}
