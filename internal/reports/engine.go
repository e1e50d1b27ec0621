package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

// Source reads the raw movement data. Implementations may be bound to a
// transaction or to the pool.
type Source interface {
	ActiveProducts(ctx context.Context, tenantID int64) ([]Snapshot, error)
	// PurchasedQuantities sums non-returned purchase quantities per product.
	PurchasedQuantities(ctx context.Context, tenantID int64, w Window) (map[int64]int64, error)
	// SoldQuantities sums non-returned sale and adjustment quantities per product.
	SoldQuantities(ctx context.Context, tenantID int64, w Window) (map[int64]int64, error)
}

// Build aggregates the movement rows for every active product of the tenant.
// Products without movement report zero.
func Build(ctx context.Context, src Source, tenantID int64, w Window) ([]MovementRow, error) {
	if !w.End.After(w.Start) {
		return nil, shared.E(shared.KindInvalid, "reports: build", "window end must be after start")
	}
	var (
		products  []Snapshot
		purchased map[int64]int64
		sold      map[int64]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = src.ActiveProducts(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		purchased, err = src.PurchasedQuantities(gctx, tenantID, w)
		return err
	})
	g.Go(func() error {
		var err error
		sold, err = src.SoldQuantities(gctx, tenantID, w)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reports: build: %w", err)
	}
	rows := make([]MovementRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, MovementRow{
			ProductID:        p.ProductID,
			ProductName:      p.Name,
			MorningStock:     p.MorningStock,
			MorningStockDate: p.MorningStockDate,
			Purchased:        purchased[p.ProductID],
			Sold:             sold[p.ProductID],
			CurrentStock:     p.CurrentStock,
		})
	}
	return rows, nil
}

// Engine serves movement reports through the cache.
type Engine struct {
	src    Source
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewEngine constructs an Engine. A nil cache disables caching.
func NewEngine(src Source, cache *Cache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{src: src, cache: cache, logger: logger}
}

// MovementReport returns the rows for [start, end of end's day].
func (e *Engine) MovementReport(ctx context.Context, tenantID int64, start, end time.Time) ([]MovementRow, error) {
	w := DayWindow(start, end)
	key, err := e.cache.BuildKey(ctx, tenantID, "movement", strconv.FormatInt(tenantID, 10),
		w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	if err != nil {
		e.logger.Warn("report cache key", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		return Build(ctx, e.src, tenantID, w)
	}
	v, err, dup := e.group.Do(key, func() (any, error) {
		return Fetch(ctx, e.cache, key, func(ctx context.Context) ([]MovementRow, error) {
			return Build(ctx, e.src, tenantID, w)
		})
	})
	if err != nil {
		return nil, err
	}
	rows := v.([]MovementRow)
	if dup {
		rows = append([]MovementRow(nil), rows...)
	}
	return rows, nil
}

// Invalidate drops every cached report of the tenant.
func (e *Engine) Invalidate(ctx context.Context, tenantID int64) error {
	return e.cache.Bump(ctx, tenantID)
}
