package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the vendor statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

const vendorColumns = `tenant_id, id, name, priority, status, outstanding_balance, created_at, updated_at`

func scanVendor(row pgx.Row) (Vendor, error) {
	var v Vendor
	var status string
	if err := row.Scan(&v.TenantID, &v.ID, &v.Name, &v.Priority, &status, &v.OutstandingBalance, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return Vendor{}, err
	}
	v.Status = Status(status)
	return v, nil
}

// LockTenant takes a transaction scoped advisory lock for the tenant's ranks.
func (r *txRepo) LockTenant(ctx context.Context, tenantID int64) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('vendors:' || $1::text, 0))`, tenantID)
	if err != nil {
		return fmt.Errorf("vendors: lock tenant: %w", err)
	}
	return nil
}

func (r *txRepo) CountActive(ctx context.Context, tenantID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM vendors WHERE tenant_id=$1 AND status='active'`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("vendors: count active: %w", err)
	}
	return n, nil
}

func (r *txRepo) ListActive(ctx context.Context, tenantID int64) ([]Vendor, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+vendorColumns+` FROM vendors
WHERE tenant_id=$1 AND status='active' ORDER BY priority, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("vendors: list active: %w", err)
	}
	defer rows.Close()
	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *txRepo) GetForUpdate(ctx context.Context, tenantID, vendorID int64) (Vendor, error) {
	v, err := scanVendor(r.tx.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, vendorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, shared.E(shared.KindNotFound, "vendors: get", "vendor %d not found", vendorID)
	}
	return v, err
}

// ShiftPriorities adds delta to every active vendor ranked at or after from.
// The exclusion constraint on active priorities is deferred, so transient
// duplicates inside the transaction are tolerated until commit.
func (r *txRepo) ShiftPriorities(ctx context.Context, tenantID int64, from, delta int, excludeID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE vendors SET priority = priority + $3, updated_at = NOW()
WHERE tenant_id=$1 AND status='active' AND priority >= $2 AND id <> $4`, tenantID, from, delta, excludeID)
	if err != nil {
		return fmt.Errorf("vendors: shift priorities: %w", err)
	}
	return nil
}

func (r *txRepo) Insert(ctx context.Context, v Vendor) (Vendor, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO vendors (tenant_id, name, priority, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, outstanding_balance`,
		v.TenantID, v.Name, v.Priority, string(v.Status), v.CreatedAt, v.UpdatedAt).Scan(&v.ID, &v.OutstandingBalance)
	if err != nil {
		return Vendor{}, fmt.Errorf("vendors: insert: %w", err)
	}
	return v, nil
}

func (r *txRepo) SetPriority(ctx context.Context, tenantID, vendorID int64, priority int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE vendors SET priority=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, vendorID, priority)
	if err != nil {
		return fmt.Errorf("vendors: set priority: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindNotFound, "vendors: set priority", "vendor %d not found", vendorID)
	}
	return nil
}

func (r *txRepo) SetStatus(ctx context.Context, tenantID, vendorID int64, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE vendors SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, vendorID, string(status))
	if err != nil {
		return fmt.Errorf("vendors: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindNotFound, "vendors: set status", "vendor %d not found", vendorID)
	}
	return nil
}
