// Package pgtest opens a migrated PostgreSQL database for integration tests.
// Tests are skipped unless STOCKBOOK_TEST_PG_DSN is set.
package pgtest

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odyssey-erp/stockbook/internal/platform/db"
	"github.com/odyssey-erp/stockbook/internal/platform/migrate"
)

// DSNEnv names the variable holding the test database DSN.
const DSNEnv = "STOCKBOOK_TEST_PG_DSN"

var (
	migrateOnce sync.Once
	migrateErr  error
	nextTenant  atomic.Int64
)

func init() {
	if os.Getenv("STOCKBOOK_TEST_MODE") == "" {
		_ = os.Setenv("STOCKBOOK_TEST_MODE", "1")
	}
	nextTenant.Store(time.Now().UnixNano() % 1_000_000_000)
}

// Open migrates the database once per process and returns a handle closed
// when the test ends.
func Open(t testing.TB) *db.Handle {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	migrateOnce.Do(func() { migrateErr = migrate.Up(ctx, dsn, nil) })
	if migrateErr != nil {
		t.Fatalf("migrate: %v", migrateErr)
	}
	pool, err := db.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	handle := db.NewHandle(pool, time.Minute)
	t.Cleanup(handle.Close)
	return handle
}

// Tenant returns a tenant id no other test in this process uses. Rows are
// never truncated, so each test scopes itself to a fresh tenant.
func Tenant() int64 {
	return nextTenant.Add(1)
}
