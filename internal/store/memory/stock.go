package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/stock"
	"github.com/odyssey-erp/stockbook/internal/vendors"
)

type stockRepo struct {
	st *state
}

func (r stockRepo) GetProductForUpdate(_ context.Context, tenantID, productID int64) (stock.Product, error) {
	p, ok := r.st.products[productID]
	if !ok || p.TenantID != tenantID {
		return stock.Product{}, shared.E(shared.KindNotFound, "memory: get product", "product %d not found", productID)
	}
	return p, nil
}

func (r stockRepo) SetProductStock(ctx context.Context, tenantID, productID, qty int64) error {
	p, err := r.GetProductForUpdate(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	if qty < 0 {
		return shared.E(shared.KindInsufficientStock, "memory: set product stock", "product %d would go negative", productID)
	}
	p.CurrentStock = qty
	r.st.products[productID] = p
	return nil
}

func (r stockRepo) GetVendorStockForUpdate(_ context.Context, tenantID, vendorID, productID int64) (stock.VendorStock, error) {
	vs, ok := r.st.vendorStocks[vsKey{tenantID, vendorID, productID}]
	if !ok {
		return stock.VendorStock{TenantID: tenantID, VendorID: vendorID, ProductID: productID}, nil
	}
	return vs, nil
}

func (r stockRepo) UpsertVendorStock(_ context.Context, vs stock.VendorStock) error {
	if vs.CurrentStock < 0 {
		return shared.E(shared.KindInsufficientStock, "memory: upsert vendor stock", "vendor %d product %d would go negative", vs.VendorID, vs.ProductID)
	}
	if _, ok := r.st.vendors[vs.VendorID]; !ok {
		return shared.E(shared.KindNotFound, "memory: upsert vendor stock", "vendor %d not found", vs.VendorID)
	}
	r.st.vendorStocks[vsKey{vs.TenantID, vs.VendorID, vs.ProductID}] = vs
	return nil
}

func (r stockRepo) ListVendorStocksForUpdate(_ context.Context, tenantID, productID int64) ([]stock.VendorStock, error) {
	var out []stock.VendorStock
	for k, vs := range r.st.vendorStocks {
		if k.tenantID == tenantID && k.productID == productID {
			out = append(out, vs)
		}
	}
	rank := func(vs stock.VendorStock) (bool, int, int64) {
		v := r.st.vendors[vs.VendorID]
		return v.Status == vendors.StatusActive, v.Priority, v.ID
	}
	sort.Slice(out, func(i, j int) bool {
		ai, pi, idi := rank(out[i])
		aj, pj, idj := rank(out[j])
		if ai != aj {
			return ai
		}
		if pi != pj {
			return pi < pj
		}
		return idi < idj
	})
	return out, nil
}

func (r stockRepo) InsertPurchase(_ context.Context, p stock.Purchase) (stock.Purchase, error) {
	p.ID = r.st.nextID()
	p.Items = append([]stock.PurchaseItem(nil), p.Items...)
	r.st.purchases[p.ID] = p
	return p, nil
}

func (r stockRepo) GetPurchaseForUpdate(_ context.Context, tenantID, purchaseID int64) (stock.Purchase, error) {
	p, ok := r.st.purchases[purchaseID]
	if !ok || p.TenantID != tenantID {
		return stock.Purchase{}, shared.E(shared.KindNotFound, "memory: get purchase", "purchase %d not found", purchaseID)
	}
	return p, nil
}

func (r stockRepo) MarkPurchaseReturned(ctx context.Context, tenantID, purchaseID, actorID int64, at time.Time) error {
	p, err := r.GetPurchaseForUpdate(ctx, tenantID, purchaseID)
	if err != nil {
		return err
	}
	if p.IsReturned {
		return shared.E(shared.KindAlreadyReturned, "memory: mark purchase returned", "purchase %d already returned", purchaseID)
	}
	p.IsReturned, p.ReturnedBy, p.ReturnedAt = true, actorID, at
	r.st.purchases[purchaseID] = p
	return nil
}

func (r stockRepo) InsertSale(_ context.Context, s stock.Sale) (stock.Sale, error) {
	s.ID = r.st.nextID()
	items := make([]stock.SaleItem, len(s.Items))
	for i, it := range s.Items {
		items[i] = it
		items[i].Allocations = append([]stock.Allocation(nil), it.Allocations...)
	}
	s.Items = items
	r.st.sales[s.ID] = s
	return s, nil
}

func (r stockRepo) GetSaleForUpdate(_ context.Context, tenantID, saleID int64) (stock.Sale, error) {
	s, ok := r.st.sales[saleID]
	if !ok || s.TenantID != tenantID {
		return stock.Sale{}, shared.E(shared.KindNotFound, "memory: get sale", "sale %d not found", saleID)
	}
	return s, nil
}

func (r stockRepo) MarkSaleReturned(ctx context.Context, tenantID, saleID, actorID int64, at time.Time) error {
	s, err := r.GetSaleForUpdate(ctx, tenantID, saleID)
	if err != nil {
		return err
	}
	if s.IsReturned {
		return shared.E(shared.KindAlreadyReturned, "memory: mark sale returned", "sale %d already returned", saleID)
	}
	s.IsReturned, s.ReturnedBy, s.ReturnedAt = true, actorID, at
	r.st.sales[saleID] = s
	return nil
}

func (r stockRepo) SetMorningStock(ctx context.Context, tenantID, productID, qty int64, date time.Time) error {
	p, err := r.GetProductForUpdate(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	p.MorningStock = qty
	p.MorningStockLastUpdatedDate = date.UTC()
	r.st.products[productID] = p
	return nil
}

func (r stockRepo) InsertProduct(ctx context.Context, p stock.Product) (stock.Product, error) {
	if _, err := r.FindProductByName(ctx, p.TenantID, p.Name); err == nil {
		return stock.Product{}, shared.E(shared.KindInvariantViolation, "memory: insert product", "product %q exists", p.Name)
	}
	if p.Status == "" {
		p.Status = stock.ProductActive
	}
	p.ID = r.st.nextID()
	r.st.products[p.ID] = p
	return p, nil
}

func (r stockRepo) FindProductByName(_ context.Context, tenantID int64, name string) (stock.Product, error) {
	for _, p := range r.st.products {
		if p.TenantID == tenantID && p.Status == stock.ProductActive && sameName(p.Name, name) {
			return p, nil
		}
	}
	return stock.Product{}, shared.E(shared.KindNotFound, "memory: find product", "product %q not found", name)
}

func (r stockRepo) UpdateProductPrice(ctx context.Context, tenantID, productID int64, price decimal.Decimal) error {
	p, err := r.GetProductForUpdate(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	p.PricePerUnit = price
	r.st.products[productID] = p
	return nil
}

func (r stockRepo) ListProducts(_ context.Context, tenantID int64) ([]stock.Product, error) {
	var out []stock.Product
	for _, p := range r.st.products {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r stockRepo) SumVendorStocks(_ context.Context, tenantID int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for k, vs := range r.st.vendorStocks {
		if k.tenantID == tenantID {
			out[k.productID] += vs.CurrentStock
		}
	}
	return out, nil
}
