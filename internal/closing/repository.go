package closing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the closing statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func (r *txRepo) ClosingExists(ctx context.Context, tenantID int64, date time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_closings WHERE tenant_id=$1 AND closing_date=$2::date)`, tenantID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("closing: exists: %w", err)
	}
	return exists, nil
}

func (r *txRepo) InsertClosing(ctx context.Context, c StockClosing) (StockClosing, error) {
	var saleID *int64
	if c.SaleID > 0 {
		saleID = &c.SaleID
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_closings (tenant_id, closing_date, sale_id, cash_collected, created_by, created_at)
VALUES ($1, $2::date, $3, $4, $5, $6) RETURNING id`, c.TenantID, c.ClosingDate, saleID, c.CashCollected, c.CreatedBy, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return StockClosing{}, fmt.Errorf("closing: insert: %w", err)
	}
	rows := make([][]any, 0, len(c.Items))
	for _, it := range c.Items {
		rows = append(rows, []any{c.ID, it.ProductID, it.MorningStock, it.Purchases, it.Sales, it.SystemStock, it.ClosingStock, it.PhysicalStock, it.Discrepancy})
	}
	_, err = r.tx.CopyFrom(ctx, pgx.Identifier{"stock_closing_items"},
		[]string{"closing_id", "product_id", "morning_stock", "purchases", "sales", "system_stock", "closing_stock", "physical_stock", "discrepancy"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return StockClosing{}, fmt.Errorf("closing: insert items: %w", err)
	}
	return c, nil
}
