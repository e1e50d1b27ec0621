package reports

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository reads movement data from PostgreSQL.
type Repository struct {
	q  Querier
	mu *sync.Mutex
}

// NewRepository constructs Repository over a pool.
func NewRepository(q Querier) *Repository {
	return &Repository{q: q}
}

// NewTxRepository constructs Repository over a transaction. A pgx
// connection runs one query at a time, so reads are serialised.
func NewTxRepository(tx pgx.Tx) *Repository {
	return &Repository{q: tx, mu: &sync.Mutex{}}
}

func (r *Repository) lock() func() {
	if r.mu == nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *Repository) ActiveProducts(ctx context.Context, tenantID int64) ([]Snapshot, error) {
	defer r.lock()()
	rows, err := r.q.Query(ctx, `SELECT id, name, current_stock, morning_stock, morning_stock_last_updated_date
FROM products WHERE tenant_id=$1 AND status='active' ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("reports: active products: %w", err)
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var morningAt *time.Time
		if err := rows.Scan(&s.ProductID, &s.Name, &s.CurrentStock, &s.MorningStock, &morningAt); err != nil {
			return nil, err
		}
		if morningAt != nil {
			s.MorningStockDate = morningAt.UTC()
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) PurchasedQuantities(ctx context.Context, tenantID int64, w Window) (map[int64]int64, error) {
	return r.sum(ctx, `SELECT pi.product_id, SUM(pi.total_bottles)
FROM purchase_items pi JOIN purchases p ON p.id = pi.purchase_id
WHERE p.tenant_id=$1 AND p.is_returned=FALSE AND p.purchase_date >= $2 AND p.purchase_date < $3
GROUP BY pi.product_id`, tenantID, w)
}

func (r *Repository) SoldQuantities(ctx context.Context, tenantID int64, w Window) (map[int64]int64, error) {
	return r.sum(ctx, `SELECT si.product_id, SUM(si.quantity)
FROM sale_items si JOIN sales s ON s.id = si.sale_id
WHERE s.tenant_id=$1 AND s.is_returned=FALSE AND s.sale_type IN ('sale', 'adjustment')
AND s.sale_date >= $2 AND s.sale_date < $3
GROUP BY si.product_id`, tenantID, w)
}

func (r *Repository) sum(ctx context.Context, sql string, tenantID int64, w Window) (map[int64]int64, error) {
	defer r.lock()()
	rows, err := r.q.Query(ctx, sql, tenantID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("reports: movement sum: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}
