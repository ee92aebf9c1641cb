package razorpaywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// DeliveryGuard remembers provider event ids so redelivered notifications are
// acknowledged without being applied twice.
type DeliveryGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewDeliveryGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &DeliveryGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Seen marks eventID as delivered and reports whether it had been marked before.
func (g *DeliveryGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook delivery: %w", err)
	}
	return !set, nil
}

// Forget clears the mark so a failed delivery can be retried by the provider.
func (g *DeliveryGuard) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
