package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
	"github.com/odyssey-erp/stockbook/internal/observability"
	"github.com/odyssey-erp/stockbook/internal/platform/cache"
	"github.com/odyssey-erp/stockbook/internal/platform/db"
	"github.com/odyssey-erp/stockbook/internal/platform/migrate"
	"github.com/odyssey-erp/stockbook/internal/reports"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/store/memory"
	"github.com/odyssey-erp/stockbook/internal/store/postgres"
	"github.com/odyssey-erp/stockbook/jobs"
)

const testModeEnv = "STOCKBOOK_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// TenantLister enumerates the tenants owning data.
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]int64, error)
}

// Runtime holds the process-wide engine wiring shared by the server, the
// worker and the CLI.
type Runtime struct {
	Config      *Config
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Coordinator *coordinator.Coordinator
	Reports     *reports.Engine
	Tenants     TenantLister
	Idempotency jobs.KeyPurger
	DB          *db.Handle
	Redis       *redis.Client
}

// NewRuntime connects the configured store and Redis and builds the
// coordinator. Redis is optional: without it reports are not cached and
// bulk imports are not locked across processes.
func NewRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: metrics}

	rdb, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, running without report cache and import lock", slog.Any("error", err))
	} else {
		rt.Redis = rdb
	}
	reportCache := reports.NewCache(rt.Redis, cfg.ReportCacheTTL)

	opts := []coordinator.Option{
		coordinator.WithMetrics(coordinator.NewMetrics(metrics.Registerer())),
		coordinator.WithLocker(shared.NewTenantLocker(rt.Redis, cfg.ImportLockTTL)),
	}

	var runner coordinator.TxRunner
	switch cfg.StoreDriver {
	case DriverMemory:
		store := memory.New()
		runner = store
		rt.Tenants = store
		rt.Reports = reports.NewEngine(store.Reports(), reportCache, logger)
		rt.Idempotency = store
		opts = append(opts, coordinator.WithAudit(store), coordinator.WithIdempotency(store))
	case DriverPostgres:
		if cfg.MigrateOnStart {
			if err := migrate.Up(ctx, cfg.PGDSN, logger); err != nil {
				rt.Close()
				return nil, err
			}
		}
		handle, err := db.Init(ctx, cfg.PGDSN, cfg.PGCheckInterval)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.DB = handle
		pool, err := handle.Pool(ctx)
		if err != nil {
			rt.Close()
			return nil, err
		}
		store := postgres.New(handle)
		runner = store
		rt.Tenants = store
		rt.Reports = reports.NewEngine(postgres.Reports(pool), reportCache, logger)
		idem := shared.NewIdempotencyStore(pool)
		rt.Idempotency = idem
		opts = append(opts,
			coordinator.WithAudit(shared.NewAuditLogger(pool)),
			coordinator.WithIdempotency(idem))
	default:
		rt.Close()
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
	opts = append(opts, coordinator.WithReports(rt.Reports))

	rt.Coordinator = coordinator.New(runner, logger, coordinator.Config{
		MaxAttempts: cfg.TxMaxAttempts,
		Backoff:     cfg.TxRetryBackoff,
	}, opts...)
	logger.Info("runtime ready", slog.String("store", cfg.StoreDriver), slog.Bool("redis", rt.Redis != nil))
	return rt, nil
}

// Healthy reports whether the store is reachable.
func (r *Runtime) Healthy(ctx context.Context) error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Healthy(ctx)
}

// Close releases the database pool and the Redis client.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	if r.DB != nil {
		db.Shutdown()
		r.DB = nil
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			r.Logger.Warn("redis close", slog.Any("error", err))
		}
		r.Redis = nil
	}
}
