package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// TenantLockKey builds redis keys for tenant scoped critical sections.
func TenantLockKey(scope string, tenantID int64) string {
	return fmt.Sprintf("stockbook:tenant:%d:%s:lock", tenantID, scope)
}

// TenantLocker serialises long running tenant operations across instances.
type TenantLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewTenantLocker builds a locker on top of the redis client. A nil client
// yields a locker that never blocks.
func NewTenantLocker(rdb *redis.Client, ttl time.Duration) *TenantLocker {
	if rdb == nil {
		return &TenantLocker{}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TenantLocker{client: redislock.New(rdb), ttl: ttl}
}

// Acquire obtains the lock for scope and tenant, returning its release func.
func (l *TenantLocker) Acquire(ctx context.Context, scope string, tenantID int64) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	lock, err := l.client.Obtain(ctx, TenantLockKey(scope, tenantID), l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, E(KindTransientConflict, scope, "another %s is running for tenant %d", scope, tenantID)
		}
		return nil, err
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}
