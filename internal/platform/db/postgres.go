package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a new PostgreSQL connection pool.
func New(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

// ErrNotInitialised is returned when the process handle is used before Init.
var ErrNotInitialised = errors.New("platform/db: handle not initialised")

// Handle owns the process-wide pool. It is created once at start-up,
// health-checked lazily and closed at shutdown.
type Handle struct {
	pool          *pgxpool.Pool
	checkInterval time.Duration

	mu        sync.Mutex
	lastCheck time.Time
	closed    bool
}

// NewHandle wraps an existing pool.
func NewHandle(pool *pgxpool.Pool, checkInterval time.Duration) *Handle {
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	return &Handle{pool: pool, checkInterval: checkInterval, lastCheck: time.Now()}
}

// Pool returns the pool, pinging it when the last check is older than the interval.
func (h *Handle) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	if h == nil || h.pool == nil {
		return nil, ErrNotInitialised
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrNotInitialised
	}
	if time.Since(h.lastCheck) < h.checkInterval {
		return h.pool, nil
	}
	if err := h.pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("platform/db: health check: %w", err)
	}
	h.lastCheck = time.Now()
	return h.pool, nil
}

// Healthy pings the pool regardless of the interval.
func (h *Handle) Healthy(ctx context.Context) error {
	if h == nil || h.pool == nil {
		return ErrNotInitialised
	}
	if err := h.pool.Ping(ctx); err != nil {
		return fmt.Errorf("platform/db: health check: %w", err)
	}
	h.mu.Lock()
	h.lastCheck = time.Now()
	h.mu.Unlock()
	return nil
}

// Close tears the pool down. Safe to call more than once.
func (h *Handle) Close() {
	if h == nil || h.pool == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.pool.Close()
}

var (
	processMu     sync.Mutex
	processHandle *Handle
)

// Init opens the process handle once. Later calls return the same handle.
func Init(ctx context.Context, dsn string, checkInterval time.Duration) (*Handle, error) {
	processMu.Lock()
	defer processMu.Unlock()
	if processHandle != nil {
		return processHandle, nil
	}
	pool, err := New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	processHandle = NewHandle(pool, checkInterval)
	return processHandle, nil
}

// Default returns the process handle, or nil before Init.
func Default() *Handle {
	processMu.Lock()
	defer processMu.Unlock()
	return processHandle
}

// Shutdown closes and forgets the process handle.
func Shutdown() {
	processMu.Lock()
	h := processHandle
	processHandle = nil
	processMu.Unlock()
	h.Close()
}
