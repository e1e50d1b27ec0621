package stock

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

// TxRepository exposes the transactional stock operations used by Ledger.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, tenantID, productID int64) (Product, error)
	SetProductStock(ctx context.Context, tenantID, productID, qty int64) error
	// GetVendorStockForUpdate returns a zero share when no row exists yet.
	GetVendorStockForUpdate(ctx context.Context, tenantID, vendorID, productID int64) (VendorStock, error)
	UpsertVendorStock(ctx context.Context, vs VendorStock) error
	ListVendorStocksForUpdate(ctx context.Context, tenantID, productID int64) ([]VendorStock, error)
	InsertPurchase(ctx context.Context, p Purchase) (Purchase, error)
	GetPurchaseForUpdate(ctx context.Context, tenantID, purchaseID int64) (Purchase, error)
	MarkPurchaseReturned(ctx context.Context, tenantID, purchaseID, actorID int64, at time.Time) error
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	GetSaleForUpdate(ctx context.Context, tenantID, saleID int64) (Sale, error)
	MarkSaleReturned(ctx context.Context, tenantID, saleID, actorID int64, at time.Time) error
	SetMorningStock(ctx context.Context, tenantID, productID, qty int64, date time.Time) error
	InsertProduct(ctx context.Context, p Product) (Product, error)
	FindProductByName(ctx context.Context, tenantID int64, name string) (Product, error)
	UpdateProductPrice(ctx context.Context, tenantID, productID int64, price decimal.Decimal) error
	ListProducts(ctx context.Context, tenantID int64) ([]Product, error)
	SumVendorStocks(ctx context.Context, tenantID int64) (map[int64]int64, error)
}

// Ledger applies paired mutations to product and vendor stock.
type Ledger struct {
	now func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

type movement struct {
	productID int64
	vendorID  int64
	delta     int64
}

// move applies every movement as one paired write per (product, vendor).
// Rows are visited in product then vendor order so concurrent writers lock
// them in the same sequence.
func (l *Ledger) move(ctx context.Context, tx TxRepository, tenantID int64, op string, moves []movement) error {
	merged := make(map[[2]int64]int64, len(moves))
	for _, m := range moves {
		merged[[2]int64{m.productID, m.vendorID}] += m.delta
	}
	keys := make([][2]int64, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		delta := merged[k]
		if delta == 0 {
			continue
		}
		productID, vendorID := k[0], k[1]
		product, err := tx.GetProductForUpdate(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		vs, err := tx.GetVendorStockForUpdate(ctx, tenantID, vendorID, productID)
		if err != nil {
			return err
		}
		nextProduct := product.CurrentStock + delta
		nextVendor := vs.CurrentStock + delta
		if nextProduct < 0 || nextVendor < 0 {
			return shared.E(shared.KindInsufficientStock, op,
				"product %d vendor %d: have %d (vendor %d), need %d", productID, vendorID, product.CurrentStock, vs.CurrentStock, -delta)
		}
		if err := tx.SetProductStock(ctx, tenantID, productID, nextProduct); err != nil {
			return err
		}
		vs.TenantID, vs.VendorID, vs.ProductID = tenantID, vendorID, productID
		vs.CurrentStock = nextVendor
		if err := tx.UpsertVendorStock(ctx, vs); err != nil {
			return err
		}
	}
	return nil
}

// ApplyPurchase stores the purchase and adds its quantities to the product
// and to the purchasing vendor's share.
func (l *Ledger) ApplyPurchase(ctx context.Context, tx TxRepository, p Purchase) (Purchase, error) {
	const op = "stock: apply purchase"
	if p.TenantID <= 0 || p.VendorID <= 0 || len(p.Items) == 0 {
		return Purchase{}, shared.E(shared.KindInvalid, op, "tenant, vendor and items required")
	}
	moves := make([]movement, 0, len(p.Items))
	for i, it := range p.Items {
		if it.ProductID <= 0 || it.TotalBottles <= 0 {
			return Purchase{}, shared.E(shared.KindInvalid, op, "item %d: product and positive quantity required", i+1)
		}
		if it.Amount.IsNegative() {
			return Purchase{}, shared.E(shared.KindInvalid, op, "item %d: negative amount", i+1)
		}
		if err := l.requireActive(ctx, tx, p.TenantID, it.ProductID); err != nil {
			return Purchase{}, err
		}
		moves = append(moves, movement{productID: it.ProductID, vendorID: p.VendorID, delta: it.TotalBottles})
	}
	now := l.now()
	if p.PurchaseDate.IsZero() {
		p.PurchaseDate = now
	}
	p.CreatedAt = now
	p.IsReturned = false
	stored, err := tx.InsertPurchase(ctx, p)
	if err != nil {
		return Purchase{}, err
	}
	if err := l.move(ctx, tx, p.TenantID, op, moves); err != nil {
		return Purchase{}, err
	}
	return stored, nil
}

// ReversePurchase takes the purchased quantities back out of stock and marks
// the purchase returned. A returned purchase is terminal.
func (l *Ledger) ReversePurchase(ctx context.Context, tx TxRepository, tenantID, purchaseID, actorID int64) (Purchase, error) {
	const op = "stock: reverse purchase"
	p, err := tx.GetPurchaseForUpdate(ctx, tenantID, purchaseID)
	if err != nil {
		return Purchase{}, err
	}
	if p.IsReturned {
		return Purchase{}, shared.E(shared.KindAlreadyReturned, op, "purchase %d already returned", purchaseID)
	}
	moves := make([]movement, 0, len(p.Items))
	for _, it := range p.Items {
		moves = append(moves, movement{productID: it.ProductID, vendorID: p.VendorID, delta: -it.TotalBottles})
	}
	if err := l.move(ctx, tx, tenantID, op, moves); err != nil {
		return Purchase{}, err
	}
	at := l.now()
	if err := tx.MarkPurchaseReturned(ctx, tenantID, purchaseID, actorID, at); err != nil {
		return Purchase{}, err
	}
	p.IsReturned = true
	p.ReturnedBy = actorID
	p.ReturnedAt = at
	return p, nil
}

// ApplySale validates the vendor allocation of each line and draws the
// quantities from product and vendor stock.
func (l *Ledger) ApplySale(ctx context.Context, tx TxRepository, s Sale) (Sale, error) {
	const op = "stock: apply sale"
	if s.TenantID <= 0 || len(s.Items) == 0 {
		return Sale{}, shared.E(shared.KindInvalid, op, "tenant and items required")
	}
	if s.Type == "" {
		s.Type = SaleTypeSale
	}
	if s.Type == SaleTypeReturn {
		return Sale{}, shared.E(shared.KindInvalid, op, "return sales are created by ReverseSale")
	}
	var moves []movement
	for i, it := range s.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return Sale{}, shared.E(shared.KindInvalid, op, "item %d: product and positive quantity required", i+1)
		}
		if it.Amount.IsNegative() {
			return Sale{}, shared.E(shared.KindInvalid, op, "item %d: negative amount", i+1)
		}
		var allocated int64
		for _, a := range it.Allocations {
			if a.VendorID <= 0 || a.Quantity <= 0 {
				return Sale{}, shared.E(shared.KindInvariantViolation, op, "item %d: allocation needs vendor and positive quantity", i+1)
			}
			allocated += a.Quantity
			moves = append(moves, movement{productID: it.ProductID, vendorID: a.VendorID, delta: -a.Quantity})
		}
		if allocated != it.Quantity {
			return Sale{}, shared.E(shared.KindInvariantViolation, op, "item %d: allocated %d of %d", i+1, allocated, it.Quantity)
		}
		if err := l.requireActive(ctx, tx, s.TenantID, it.ProductID); err != nil {
			return Sale{}, err
		}
	}
	now := l.now()
	if s.SaleDate.IsZero() {
		s.SaleDate = now
	}
	s.CreatedAt = now
	s.IsReturned, s.IsVoided, s.ReferenceSaleID = false, false, 0
	if err := l.move(ctx, tx, s.TenantID, op, moves); err != nil {
		return Sale{}, err
	}
	return tx.InsertSale(ctx, s)
}

// ReverseSale puts the sold quantities back to the vendors they were drawn
// from, marks the sale returned and records a compensating return sale.
// Sales that predate a product's morning stock snapshot cannot be returned.
func (l *Ledger) ReverseSale(ctx context.Context, tx TxRepository, tenantID, saleID, actorID int64) (Sale, Sale, error) {
	const op = "stock: reverse sale"
	s, err := tx.GetSaleForUpdate(ctx, tenantID, saleID)
	if err != nil {
		return Sale{}, Sale{}, err
	}
	if s.IsReturned {
		return Sale{}, Sale{}, shared.E(shared.KindAlreadyReturned, op, "sale %d already returned", saleID)
	}
	if s.Type != SaleTypeSale || s.IsVoided {
		return Sale{}, Sale{}, shared.E(shared.KindInvariantViolation, op, "sale %d of type %s cannot be returned", saleID, s.Type)
	}
	var moves []movement
	for _, it := range s.Items {
		product, err := tx.GetProductForUpdate(ctx, tenantID, it.ProductID)
		if err != nil {
			return Sale{}, Sale{}, err
		}
		if !product.MorningStockLastUpdatedDate.IsZero() && product.MorningStockLastUpdatedDate.After(s.SaleDate) {
			return Sale{}, Sale{}, shared.E(shared.KindTemporalConstraint, op,
				"product %d stock was snapshotted at %s after the sale", it.ProductID, product.MorningStockLastUpdatedDate.Format(time.RFC3339))
		}
		for i := len(it.Allocations) - 1; i >= 0; i-- {
			a := it.Allocations[i]
			moves = append(moves, movement{productID: it.ProductID, vendorID: a.VendorID, delta: a.Quantity})
		}
	}
	if err := l.move(ctx, tx, tenantID, op, moves); err != nil {
		return Sale{}, Sale{}, err
	}
	at := l.now()
	if err := tx.MarkSaleReturned(ctx, tenantID, saleID, actorID, at); err != nil {
		return Sale{}, Sale{}, err
	}
	s.IsReturned = true
	s.ReturnedBy = actorID
	s.ReturnedAt = at

	ret := Sale{
		TenantID:        tenantID,
		Type:            SaleTypeReturn,
		CustomerID:      s.CustomerID,
		Items:           cloneItems(s.Items),
		PaidCash:        s.PaidCash,
		PaidOnline:      s.PaidOnline,
		SaleDate:        at,
		ReferenceSaleID: s.ID,
		CreatedBy:       actorID,
		CreatedAt:       at,
	}
	ret, err = tx.InsertSale(ctx, ret)
	if err != nil {
		return Sale{}, Sale{}, err
	}
	return s, ret, nil
}

// AllocateByPriority draws qty from vendor shares in rank order, priority 1
// first. Shares of deleted vendors are drawn last.
func (l *Ledger) AllocateByPriority(ctx context.Context, tx TxRepository, tenantID, productID, qty int64) ([]Allocation, error) {
	return l.AllocateRemaining(ctx, tx, tenantID, productID, qty, nil)
}

// AllocateRemaining allocates like AllocateByPriority from what is left of
// each vendor share after the reserved quantities, keyed by vendor id.
func (l *Ledger) AllocateRemaining(ctx context.Context, tx TxRepository, tenantID, productID, qty int64, reserved map[int64]int64) ([]Allocation, error) {
	const op = "stock: allocate"
	if qty <= 0 {
		return nil, shared.E(shared.KindInvalid, op, "quantity must be positive")
	}
	shares, err := tx.ListVendorStocksForUpdate(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	remaining := qty
	var out []Allocation
	for _, vs := range shares {
		if remaining == 0 {
			break
		}
		free := vs.CurrentStock - reserved[vs.VendorID]
		if free <= 0 {
			continue
		}
		take := min(free, remaining)
		out = append(out, Allocation{VendorID: vs.VendorID, Quantity: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, shared.E(shared.KindInsufficientStock, op, "product %d short by %d", productID, remaining)
	}
	return out, nil
}

// RecordMorningStock stores a manual opening snapshot without touching
// CurrentStock.
func (l *Ledger) RecordMorningStock(ctx context.Context, tx TxRepository, tenantID, productID, qty int64, date time.Time) error {
	const op = "stock: morning stock"
	if qty < 0 {
		return shared.E(shared.KindInvalid, op, "quantity must not be negative")
	}
	if err := l.requireActive(ctx, tx, tenantID, productID); err != nil {
		return err
	}
	if date.IsZero() {
		date = l.now()
	}
	return tx.SetMorningStock(ctx, tenantID, productID, qty, date)
}

// VerifyConservation lists products whose vendor shares differ from stock.
func (l *Ledger) VerifyConservation(ctx context.Context, tx TxRepository, tenantID int64) ([]Mismatch, error) {
	products, err := tx.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sums, err := tx.SumVendorStocks(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []Mismatch
	for _, p := range products {
		if sums[p.ID] != p.CurrentStock {
			out = append(out, Mismatch{ProductID: p.ID, CurrentStock: p.CurrentStock, VendorSum: sums[p.ID]})
		}
	}
	return out, nil
}

func (l *Ledger) requireActive(ctx context.Context, tx TxRepository, tenantID, productID int64) error {
	p, err := tx.GetProductForUpdate(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	if p.Status != ProductActive {
		return shared.E(shared.KindNotFound, "stock", "product %d is deleted", productID)
	}
	return nil
}

func cloneItems(items []SaleItem) []SaleItem {
	out := make([]SaleItem, len(items))
	for i, it := range items {
		out[i] = it
		out[i].Allocations = append([]Allocation(nil), it.Allocations...)
	}
	return out
}
