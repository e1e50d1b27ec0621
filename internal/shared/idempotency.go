package shared

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict is returned when a key has already been claimed.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

const opIdempotency = "shared/idempotency"

// IdempotencyKey scopes a caller supplied key to a tenant and module.
func IdempotencyKey(tenantID int64, module, key string) string {
	return strconv.FormatInt(tenantID, 10) + ":" + module + ":" + key
}

// IdempotencyStore claims keys in the idempotency_keys table. A claimed
// key blocks repeats until it is released or purged.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore returns a store backed by pool.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key for module, or returns ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return errors.New("shared/idempotency: store not initialised")
	}
	if key == "" || module == "" {
		return E(KindInvalid, opIdempotency, "key and module required")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		key, module)
	if err != nil {
		return fmt.Errorf("%s: claim %q: %w", opIdempotency, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete releases key so the operation can be submitted again.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.pool == nil || key == "" {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%s: release %q: %w", opIdempotency, key, err)
	}
	return nil
}

// Cleanup purges keys claimed more than olderThan ago.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE created_at < NOW() - make_interval(secs => $1)`,
		olderThan.Seconds()); err != nil {
		return fmt.Errorf("%s: cleanup: %w", opIdempotency, err)
	}
	return nil
}
