package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the stock statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

const productColumns = `tenant_id, id, name, current_stock, price_per_unit, morning_stock, morning_stock_last_updated_date, status`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var morningAt *time.Time
	if err := row.Scan(&p.TenantID, &p.ID, &p.Name, &p.CurrentStock, &p.PricePerUnit, &p.MorningStock, &morningAt, &p.Status); err != nil {
		return Product{}, err
	}
	if morningAt != nil {
		p.MorningStockLastUpdatedDate = morningAt.UTC()
	}
	return p, nil
}

func notFound(op, what string, id int64) error {
	return shared.E(shared.KindNotFound, op, "%s %d not found", what, id)
}

func (r *txRepo) GetProductForUpdate(ctx context.Context, tenantID, productID int64) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, notFound("stock: get product", "product", productID)
	}
	if err != nil {
		return Product{}, fmt.Errorf("stock: get product: %w", err)
	}
	return p, nil
}

func (r *txRepo) SetProductStock(ctx context.Context, tenantID, productID, qty int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET current_stock=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, productID, qty)
	if err != nil {
		return fmt.Errorf("stock: set product stock: %w", err)
	}
	return nil
}

func (r *txRepo) GetVendorStockForUpdate(ctx context.Context, tenantID, vendorID, productID int64) (VendorStock, error) {
	vs := VendorStock{TenantID: tenantID, VendorID: vendorID, ProductID: productID}
	err := r.tx.QueryRow(ctx, `SELECT current_stock FROM vendor_stocks
WHERE tenant_id=$1 AND vendor_id=$2 AND product_id=$3 FOR UPDATE`, tenantID, vendorID, productID).Scan(&vs.CurrentStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return vs, nil
	}
	if err != nil {
		return VendorStock{}, fmt.Errorf("stock: get vendor stock: %w", err)
	}
	return vs, nil
}

func (r *txRepo) UpsertVendorStock(ctx context.Context, vs VendorStock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO vendor_stocks (tenant_id, vendor_id, product_id, current_stock, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (tenant_id, vendor_id, product_id) DO UPDATE SET current_stock = EXCLUDED.current_stock, updated_at = NOW()`,
		vs.TenantID, vs.VendorID, vs.ProductID, vs.CurrentStock)
	if err != nil {
		return fmt.Errorf("stock: upsert vendor stock: %w", err)
	}
	return nil
}

func (r *txRepo) ListVendorStocksForUpdate(ctx context.Context, tenantID, productID int64) ([]VendorStock, error) {
	rows, err := r.tx.Query(ctx, `SELECT vs.vendor_id, vs.current_stock
FROM vendor_stocks vs
JOIN vendors v ON v.id = vs.vendor_id AND v.tenant_id = vs.tenant_id
WHERE vs.tenant_id=$1 AND vs.product_id=$2
ORDER BY (v.status = 'active') DESC, v.priority, v.id
FOR UPDATE OF vs`, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("stock: list vendor stocks: %w", err)
	}
	defer rows.Close()
	var out []VendorStock
	for rows.Next() {
		vs := VendorStock{TenantID: tenantID, ProductID: productID}
		if err := rows.Scan(&vs.VendorID, &vs.CurrentStock); err != nil {
			return nil, err
		}
		out = append(out, vs)
	}
	return out, rows.Err()
}

func (r *txRepo) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchases (tenant_id, vendor_id, total_amount, paid_cash, paid_online, purchase_date, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.TenantID, p.VendorID, p.Total(), p.PaidCash, p.PaidOnline, p.PurchaseDate, p.CreatedBy, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return Purchase{}, fmt.Errorf("stock: insert purchase: %w", err)
	}
	batch := &pgx.Batch{}
	for i, it := range p.Items {
		batch.Queue(`INSERT INTO purchase_items (purchase_id, line_no, product_id, total_bottles, amount) VALUES ($1, $2, $3, $4, $5)`,
			p.ID, i+1, it.ProductID, it.TotalBottles, it.Amount)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return Purchase{}, fmt.Errorf("stock: insert purchase items: %w", err)
	}
	return p, nil
}

func (r *txRepo) GetPurchaseForUpdate(ctx context.Context, tenantID, purchaseID int64) (Purchase, error) {
	p := Purchase{TenantID: tenantID, ID: purchaseID}
	var returnedBy *int64
	var returnedAt *time.Time
	err := r.tx.QueryRow(ctx, `SELECT vendor_id, paid_cash, paid_online, purchase_date, is_returned, returned_by, returned_at, created_by, created_at
FROM purchases WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, purchaseID).Scan(
		&p.VendorID, &p.PaidCash, &p.PaidOnline, &p.PurchaseDate, &p.IsReturned, &returnedBy, &returnedAt, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, notFound("stock: get purchase", "purchase", purchaseID)
	}
	if err != nil {
		return Purchase{}, fmt.Errorf("stock: get purchase: %w", err)
	}
	if returnedBy != nil {
		p.ReturnedBy = *returnedBy
	}
	if returnedAt != nil {
		p.ReturnedAt = *returnedAt
	}
	rows, err := r.tx.Query(ctx, `SELECT product_id, total_bottles, amount FROM purchase_items WHERE purchase_id=$1 ORDER BY line_no`, purchaseID)
	if err != nil {
		return Purchase{}, fmt.Errorf("stock: get purchase items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it PurchaseItem
		if err := rows.Scan(&it.ProductID, &it.TotalBottles, &it.Amount); err != nil {
			return Purchase{}, err
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

func (r *txRepo) MarkPurchaseReturned(ctx context.Context, tenantID, purchaseID, actorID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchases SET is_returned=TRUE, returned_by=$3, returned_at=$4
WHERE tenant_id=$1 AND id=$2 AND is_returned=FALSE`, tenantID, purchaseID, actorID, at)
	if err != nil {
		return fmt.Errorf("stock: mark purchase returned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindAlreadyReturned, "stock: mark purchase returned", "purchase %d already returned", purchaseID)
	}
	return nil
}

func (r *txRepo) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	var customerID, referenceID *int64
	if s.CustomerID > 0 {
		customerID = &s.CustomerID
	}
	if s.ReferenceSaleID > 0 {
		referenceID = &s.ReferenceSaleID
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (tenant_id, sale_type, customer_id, total_amount, paid_cash, paid_online, sale_date, reference_sale_id, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		s.TenantID, string(s.Type), customerID, s.Total(), s.PaidCash, s.PaidOnline, s.SaleDate, referenceID, s.CreatedBy, s.CreatedAt).Scan(&s.ID)
	if err != nil {
		return Sale{}, fmt.Errorf("stock: insert sale: %w", err)
	}
	batch := &pgx.Batch{}
	for i, it := range s.Items {
		batch.Queue(`INSERT INTO sale_items (sale_id, line_no, product_id, quantity, amount) VALUES ($1, $2, $3, $4, $5)`,
			s.ID, i+1, it.ProductID, it.Quantity, it.Amount)
		for _, a := range it.Allocations {
			batch.Queue(`INSERT INTO sale_item_allocations (sale_id, line_no, vendor_id, quantity) VALUES ($1, $2, $3, $4)
ON CONFLICT (sale_id, line_no, vendor_id) DO UPDATE SET quantity = sale_item_allocations.quantity + EXCLUDED.quantity`,
				s.ID, i+1, a.VendorID, a.Quantity)
		}
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return Sale{}, fmt.Errorf("stock: insert sale items: %w", err)
	}
	return s, nil
}

func (r *txRepo) GetSaleForUpdate(ctx context.Context, tenantID, saleID int64) (Sale, error) {
	s := Sale{TenantID: tenantID, ID: saleID}
	var saleType string
	var customerID, referenceID, returnedBy *int64
	var returnedAt *time.Time
	err := r.tx.QueryRow(ctx, `SELECT sale_type, customer_id, paid_cash, paid_online, sale_date, is_returned, is_voided,
reference_sale_id, returned_by, returned_at, created_by, created_at
FROM sales WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, saleID).Scan(
		&saleType, &customerID, &s.PaidCash, &s.PaidOnline, &s.SaleDate, &s.IsReturned, &s.IsVoided,
		&referenceID, &returnedBy, &returnedAt, &s.CreatedBy, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, notFound("stock: get sale", "sale", saleID)
	}
	if err != nil {
		return Sale{}, fmt.Errorf("stock: get sale: %w", err)
	}
	s.Type = SaleType(saleType)
	s.CustomerID = deref(customerID)
	s.ReferenceSaleID = deref(referenceID)
	s.ReturnedBy = deref(returnedBy)
	if returnedAt != nil {
		s.ReturnedAt = *returnedAt
	}

	rows, err := r.tx.Query(ctx, `SELECT si.line_no, si.product_id, si.quantity, si.amount, a.vendor_id, a.quantity
FROM sale_items si
LEFT JOIN sale_item_allocations a ON a.sale_id = si.sale_id AND a.line_no = si.line_no
WHERE si.sale_id=$1 ORDER BY si.line_no, a.vendor_id`, saleID)
	if err != nil {
		return Sale{}, fmt.Errorf("stock: get sale items: %w", err)
	}
	defer rows.Close()
	lastLine := 0
	for rows.Next() {
		var line int
		var it SaleItem
		var vendorID, qty *int64
		if err := rows.Scan(&line, &it.ProductID, &it.Quantity, &it.Amount, &vendorID, &qty); err != nil {
			return Sale{}, err
		}
		if line != lastLine {
			s.Items = append(s.Items, it)
			lastLine = line
		}
		if vendorID != nil && qty != nil {
			cur := &s.Items[len(s.Items)-1]
			cur.Allocations = append(cur.Allocations, Allocation{VendorID: *vendorID, Quantity: *qty})
		}
	}
	return s, rows.Err()
}

func (r *txRepo) MarkSaleReturned(ctx context.Context, tenantID, saleID, actorID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales SET is_returned=TRUE, returned_by=$3, returned_at=$4
WHERE tenant_id=$1 AND id=$2 AND is_returned=FALSE`, tenantID, saleID, actorID, at)
	if err != nil {
		return fmt.Errorf("stock: mark sale returned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindAlreadyReturned, "stock: mark sale returned", "sale %d already returned", saleID)
	}
	return nil
}

func (r *txRepo) SetMorningStock(ctx context.Context, tenantID, productID, qty int64, date time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET morning_stock=$3, morning_stock_last_updated_date=$4, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenantID, productID, qty, date)
	if err != nil {
		return fmt.Errorf("stock: set morning stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("stock: set morning stock", "product", productID)
	}
	return nil
}

func (r *txRepo) InsertProduct(ctx context.Context, p Product) (Product, error) {
	if p.Status == "" {
		p.Status = ProductActive
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO products (tenant_id, name, price_per_unit, status) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.TenantID, p.Name, p.PricePerUnit, p.Status).Scan(&p.ID)
	if err != nil {
		return Product{}, fmt.Errorf("stock: insert product: %w", err)
	}
	return p, nil
}

func (r *txRepo) FindProductByName(ctx context.Context, tenantID int64, name string) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products
WHERE tenant_id=$1 AND lower(name)=$2 AND status='active' FOR UPDATE`, tenantID, strings.ToLower(strings.TrimSpace(name))))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.E(shared.KindNotFound, "stock: find product", "product %q not found", name)
	}
	if err != nil {
		return Product{}, fmt.Errorf("stock: find product: %w", err)
	}
	return p, nil
}

func (r *txRepo) UpdateProductPrice(ctx context.Context, tenantID, productID int64, price decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET price_per_unit=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, productID, price)
	if err != nil {
		return fmt.Errorf("stock: update price: %w", err)
	}
	return nil
}

func (r *txRepo) ListProducts(ctx context.Context, tenantID int64) ([]Product, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("stock: list products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepo) SumVendorStocks(ctx context.Context, tenantID int64) (map[int64]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT product_id, COALESCE(SUM(current_stock), 0) FROM vendor_stocks WHERE tenant_id=$1 GROUP BY product_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("stock: sum vendor stocks: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var productID, sum int64
		if err := rows.Scan(&productID, &sum); err != nil {
			return nil, err
		}
		out[productID] = sum
	}
	return out, rows.Err()
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
