// Package postgres runs the engine's units of work as serializable
// PostgreSQL transactions.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockbook/internal/closing"
	"github.com/odyssey-erp/stockbook/internal/coordinator"
	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/platform/db"
	"github.com/odyssey-erp/stockbook/internal/reports"
	"github.com/odyssey-erp/stockbook/internal/stock"
	"github.com/odyssey-erp/stockbook/internal/vendors"
)

// Store opens transactions on the process handle.
type Store struct {
	handle *db.Handle
}

// New constructs Store.
func New(handle *db.Handle) *Store {
	return &Store{handle: handle}
}

// WithTx runs fn inside one serializable transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, coordinator.UnitOfWork) error) error {
	pool, err := s.handle.Pool(ctx)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, pool, db.Serializable, func(tx pgx.Tx) error {
		return fn(ctx, unit{tx: tx})
	})
}

// ListTenantIDs returns every tenant that owns vendors or products.
func (s *Store) ListTenantIDs(ctx context.Context) ([]int64, error) {
	pool, err := s.handle.Pool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT tenant_id FROM vendors UNION SELECT tenant_id FROM products UNION SELECT tenant_id FROM customers ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: list tenants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Reports returns a report source reading outside any transaction.
func Reports(pool *pgxpool.Pool) reports.Source {
	return reports.NewRepository(pool)
}

type unit struct {
	tx pgx.Tx
}

func (u unit) Vendors() vendors.TxRepository  { return vendors.NewTxRepository(u.tx) }
func (u unit) Stock() stock.TxRepository      { return stock.NewTxRepository(u.tx) }
func (u unit) Ledger() ledger.TxRepository    { return ledger.NewTxRepository(u.tx) }
func (u unit) Closings() closing.TxRepository { return closing.NewTxRepository(u.tx) }
func (u unit) Movements() reports.Source      { return reports.NewTxRepository(u.tx) }

var _ coordinator.TxRunner = (*Store)(nil)
