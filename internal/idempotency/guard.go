package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
	"github.com/cobrehq/cbmm-accounts/pkg/redis"
)

const processedScope = "event:processed"

// Guard tracks fully processed event IDs in Redis under a TTL. The absence
// of a marker is the only signal that an event id has not completed yet;
// markers expire after the retention window and the event store is never
// reconsulted.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds an idempotency guard that marks events as processed for
// the given TTL.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// IsProcessed reports whether the event id has already completed. A true
// result is authoritative for callers.
func (g *Guard) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	key, err := g.processedKey(eventID)
	if err != nil {
		return false, err
	}
	count, err := g.store.Exists(ctx, key)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency store unavailable")
	}
	return count > 0, nil
}

// MarkProcessed records the event id with the configured TTL. The stored
// value is only a processing timestamp; callers treat failures here as
// non-fatal since the event itself already completed.
func (g *Guard) MarkProcessed(ctx context.Context, eventID string) error {
	key, err := g.processedKey(eventID)
	if err != nil {
		return err
	}
	value := fmt.Sprintf("processed_at:%d", time.Now().UnixMilli())
	if err := g.store.Set(ctx, key, value, g.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking event processed")
	}
	return nil
}

func (g *Guard) processedKey(eventID string) (string, error) {
	if strings.TrimSpace(eventID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	return g.store.IdempotencyKey(processedScope, eventID), nil
}
