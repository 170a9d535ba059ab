package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cobrehq/cbmm-accounts/pkg/config"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
	"github.com/cobrehq/cbmm-accounts/pkg/metrics"
	"github.com/cobrehq/cbmm-accounts/pkg/redis"
)

// ScopeAccount is the lock scope used for per-account balance mutations.
const ScopeAccount = "account"

// Manager hands out per-resource mutex leases backed by Redis SETNX. Each
// lease carries an owner token so a holder never releases a lock that has
// already expired and been re-acquired by someone else. Note that a critical
// section running past the lease time loses mutual exclusion silently; the
// lease is not extended mid-flight.
type Manager struct {
	store     redis.LockStore
	wait      time.Duration
	lease     time.Duration
	interval  time.Duration
	log       *logger.Logger
	observers *metrics.ProcessingMetrics
}

// NewManager wires a lock manager from the lock section of the config.
func NewManager(store redis.LockStore, cfg config.LockConfig, log *logger.Logger, observers *metrics.ProcessingMetrics) (*Manager, error) {
	if store == nil {
		return nil, errors.New("lock store is required")
	}
	if cfg.WaitTimeout <= 0 || cfg.LeaseTime <= 0 || cfg.RetryInterval <= 0 {
		return nil, errors.New("lock wait timeout, lease time and retry interval must be positive")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Manager{
		store:     store,
		wait:      cfg.WaitTimeout,
		lease:     cfg.LeaseTime,
		interval:  cfg.RetryInterval,
		log:       log,
		observers: observers,
	}, nil
}

// WithLock runs fn while holding the lock for scope/id. Acquisition polls
// until the wait timeout elapses, after which a LockUnavailable error is
// returned without invoking fn. The lock is released on every exit path,
// but only if this call still owns it.
func (m *Manager) WithLock(ctx context.Context, scope, id string, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock callback is required")
	}
	key := m.store.LockKey(scope, id)
	owner, err := m.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer m.release(ctx, key, owner)
	return fn(ctx)
}

func (m *Manager) acquire(ctx context.Context, key string) (string, error) {
	owner := uuid.NewString()
	deadline := time.NewTimer(m.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		ok, err := m.store.SetNX(ctx, key, owner, m.lease)
		if err != nil {
			m.observers.ObserveLockFailure("store_error")
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock store unavailable")
		}
		if ok {
			return owner, nil
		}
		select {
		case <-ctx.Done():
			m.observers.ObserveLockFailure("cancelled")
			return "", pkgerrors.Wrap(pkgerrors.CodeCancelled, ctx.Err(), "lock acquisition cancelled")
		case <-deadline.C:
			m.observers.ObserveLockFailure("timeout")
			return "", pkgerrors.New(pkgerrors.CodeLockUnavailable, fmt.Sprintf("could not acquire lock for %s within %s", key, m.wait))
		case <-ticker.C:
		}
	}
}

func (m *Manager) release(ctx context.Context, key, owner string) {
	current, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			m.log.Error(ctx, "failed to read lock owner on release", err)
		}
		return
	}
	if current != owner {
		// Lease expired and another worker holds the key now.
		m.log.Warn(m.log.WithField(ctx, "lock_key", key), "lock lease expired before release")
		return
	}
	if err := m.store.Del(ctx, key); err != nil {
		m.log.Error(ctx, "failed to release lock", err)
	}
}
