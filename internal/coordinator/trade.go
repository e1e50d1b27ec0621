package coordinator

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/stock"
	"github.com/odyssey-erp/stockbook/internal/vendors"
)

// RecordPurchase stocks the purchased goods under the vendor, bills the
// vendor's account and books the paid part in the cashbook.
func (c *Coordinator) RecordPurchase(ctx context.Context, in PurchaseInput) (stock.Purchase, error) {
	p, err := c.begin(ctx, opRecordPurchase, &in)
	if err != nil {
		return stock.Purchase{}, err
	}
	if err := nonNegative(opRecordPurchase, in.PaidCash, in.PaidOnline); err != nil {
		return stock.Purchase{}, err
	}
	items := make([]stock.PurchaseItem, 0, len(in.Items))
	for _, it := range in.Items {
		if err := nonNegative(opRecordPurchase, it.Amount); err != nil {
			return stock.Purchase{}, err
		}
		items = append(items, stock.PurchaseItem{ProductID: it.ProductID, TotalBottles: it.Quantity, Amount: it.Amount})
	}
	var purchase stock.Purchase
	err = c.execute(ctx, opRecordPurchase, func(ctx context.Context, uow UnitOfWork) error {
		if err := c.requireVendor(ctx, uow, p.TenantID, in.VendorID); err != nil {
			return err
		}
		var err error
		purchase, err = c.stock.ApplyPurchase(ctx, uow.Stock(), stock.Purchase{
			TenantID:     p.TenantID,
			VendorID:     in.VendorID,
			Items:        items,
			PaidCash:     in.PaidCash,
			PaidOnline:   in.PaidOnline,
			PurchaseDate: in.PurchaseDate,
			CreatedBy:    p.UserID,
		})
		if err != nil {
			return err
		}
		if err := c.post(ctx, uow, ledger.Posting{
			TenantID:   p.TenantID,
			EntityType: ledger.EntityVendor,
			EntityID:   in.VendorID,
			Credit:     purchase.Total(),
			Debit:      purchase.Paid(),
			Reference:  ledger.Reference{Type: ledger.RefPurchase, ID: purchase.ID},
		}); err != nil {
			return err
		}
		return c.cash(ctx, uow, ledger.CashbookEntry{
			TenantID:    p.TenantID,
			Date:        purchase.PurchaseDate,
			SourceType:  ledger.RefPurchase,
			ReferenceID: purchase.ID,
			CashOut:     purchase.PaidCash,
			OnlineOut:   purchase.PaidOnline,
		})
	})
	if err != nil {
		return stock.Purchase{}, err
	}
	c.committed(ctx, p, "purchase:create", "purchase", purchase.ID, map[string]any{
		"vendor_id": purchase.VendorID, "total": purchase.Total().String(), "items": len(purchase.Items),
	})
	return purchase, nil
}

// ReturnPurchase sends a purchase back to its vendor.
func (c *Coordinator) ReturnPurchase(ctx context.Context, purchaseID int64) (stock.Purchase, error) {
	p, err := c.begin(ctx, opReturnPurchase, nil)
	if err != nil {
		return stock.Purchase{}, err
	}
	var returned stock.Purchase
	err = c.execute(ctx, opReturnPurchase, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		returned, err = c.stock.ReversePurchase(ctx, uow.Stock(), p.TenantID, purchaseID, p.UserID)
		if err != nil {
			return err
		}
		_, _, err = c.book.ReverseReference(ctx, uow.Ledger(), p.TenantID,
			ledger.Reference{Type: ledger.RefPurchase, ID: purchaseID},
			ledger.Reference{Type: ledger.RefPurchaseReturn, ID: purchaseID})
		if err != nil {
			return err
		}
		return c.cash(ctx, uow, ledger.CashbookEntry{
			TenantID:    p.TenantID,
			Date:        returned.ReturnedAt,
			SourceType:  ledger.RefPurchaseReturn,
			ReferenceID: purchaseID,
			CashIn:      returned.PaidCash,
			OnlineIn:    returned.PaidOnline,
		})
	})
	if err != nil {
		return stock.Purchase{}, err
	}
	c.committed(ctx, p, "purchase:return", "purchase", purchaseID, map[string]any{"vendor_id": returned.VendorID})
	return returned, nil
}

// RecordSale draws the sold goods from vendor stock, bills the customer when
// there is one and books the paid part in the cashbook.
func (c *Coordinator) RecordSale(ctx context.Context, in SaleInput) (stock.Sale, error) {
	p, err := c.begin(ctx, opRecordSale, &in)
	if err != nil {
		return stock.Sale{}, err
	}
	if err := nonNegative(opRecordSale, in.PaidCash, in.PaidOnline); err != nil {
		return stock.Sale{}, err
	}
	for _, it := range in.Items {
		if err := nonNegative(opRecordSale, it.Amount); err != nil {
			return stock.Sale{}, err
		}
	}
	var sale stock.Sale
	err = c.execute(ctx, opRecordSale, func(ctx context.Context, uow UnitOfWork) error {
		items, err := c.saleItems(ctx, uow, p.TenantID, in.Items)
		if err != nil {
			return err
		}
		sale, err = c.stock.ApplySale(ctx, uow.Stock(), stock.Sale{
			TenantID:   p.TenantID,
			Type:       stock.SaleTypeSale,
			CustomerID: in.CustomerID,
			Items:      items,
			PaidCash:   in.PaidCash,
			PaidOnline: in.PaidOnline,
			SaleDate:   in.SaleDate,
			CreatedBy:  p.UserID,
		})
		if err != nil {
			return err
		}
		if sale.CustomerID > 0 {
			if err := c.post(ctx, uow, ledger.Posting{
				TenantID:   p.TenantID,
				EntityType: ledger.EntityCustomer,
				EntityID:   sale.CustomerID,
				Credit:     sale.Total(),
				Debit:      sale.Paid(),
				Reference:  ledger.Reference{Type: ledger.RefSale, ID: sale.ID},
			}); err != nil {
				return err
			}
		}
		return c.cash(ctx, uow, ledger.CashbookEntry{
			TenantID:    p.TenantID,
			Date:        sale.SaleDate,
			SourceType:  ledger.RefSale,
			ReferenceID: sale.ID,
			CashIn:      sale.PaidCash,
			OnlineIn:    sale.PaidOnline,
		})
	})
	if err != nil {
		return stock.Sale{}, err
	}
	c.committed(ctx, p, "sale:create", "sale", sale.ID, map[string]any{
		"customer_id": sale.CustomerID, "total": sale.Total().String(), "quantity": sale.Quantity(),
	})
	return sale, nil
}

// ReturnSale reverses a sale and returns the compensating return sale.
func (c *Coordinator) ReturnSale(ctx context.Context, saleID int64) (stock.Sale, error) {
	p, err := c.begin(ctx, opReturnSale, nil)
	if err != nil {
		return stock.Sale{}, err
	}
	var ret stock.Sale
	err = c.execute(ctx, opReturnSale, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		_, ret, err = c.stock.ReverseSale(ctx, uow.Stock(), p.TenantID, saleID, p.UserID)
		if err != nil {
			return err
		}
		if ret.CustomerID > 0 {
			_, _, err = c.book.ReverseReference(ctx, uow.Ledger(), p.TenantID,
				ledger.Reference{Type: ledger.RefSale, ID: saleID},
				ledger.Reference{Type: ledger.RefSaleReturn, ID: ret.ID})
			if err != nil {
				return err
			}
		}
		return c.cash(ctx, uow, ledger.CashbookEntry{
			TenantID:    p.TenantID,
			Date:        ret.SaleDate,
			SourceType:  ledger.RefSaleReturn,
			ReferenceID: ret.ID,
			CashOut:     ret.PaidCash,
			OnlineOut:   ret.PaidOnline,
		})
	})
	if err != nil {
		return stock.Sale{}, err
	}
	c.committed(ctx, p, "sale:return", "sale", saleID, map[string]any{"return_sale_id": ret.ID})
	return ret, nil
}

// saleItems converts the input lines, allocating lines without explicit
// allocations by vendor priority. Lines of the same product share one
// allocation pass, drawn from what the explicit lines leave of each vendor
// share, so a share is never promised twice.
func (c *Coordinator) saleItems(ctx context.Context, uow UnitOfWork, tenantID int64, in []SaleItemInput) ([]stock.SaleItem, error) {
	items := make([]stock.SaleItem, len(in))
	pending := make(map[int64]int64)
	reserved := make(map[int64]map[int64]int64)
	for i, it := range in {
		items[i] = stock.SaleItem{ProductID: it.ProductID, Quantity: it.Quantity, Amount: it.Amount}
		if len(it.Allocations) == 0 {
			pending[it.ProductID] += it.Quantity
			continue
		}
		if reserved[it.ProductID] == nil {
			reserved[it.ProductID] = make(map[int64]int64)
		}
		for _, a := range it.Allocations {
			items[i].Allocations = append(items[i].Allocations, stock.Allocation{VendorID: a.VendorID, Quantity: a.Quantity})
			reserved[it.ProductID][a.VendorID] += a.Quantity
		}
	}
	if len(pending) == 0 {
		return items, nil
	}
	products := make([]int64, 0, len(pending))
	for id := range pending {
		products = append(products, id)
	}
	sort.Slice(products, func(i, j int) bool { return products[i] < products[j] })
	pools := make(map[int64][]stock.Allocation, len(products))
	for _, id := range products {
		allocs, err := c.stock.AllocateRemaining(ctx, uow.Stock(), tenantID, id, pending[id], reserved[id])
		if err != nil {
			return nil, err
		}
		pools[id] = allocs
	}
	for i, it := range in {
		if len(it.Allocations) > 0 {
			continue
		}
		items[i].Allocations, pools[it.ProductID] = take(pools[it.ProductID], it.Quantity)
	}
	return items, nil
}

// take splits qty off the front of pool.
func take(pool []stock.Allocation, qty int64) ([]stock.Allocation, []stock.Allocation) {
	var out []stock.Allocation
	for qty > 0 && len(pool) > 0 {
		head := pool[0]
		n := min(head.Quantity, qty)
		out = append(out, stock.Allocation{VendorID: head.VendorID, Quantity: n})
		qty -= n
		if n == head.Quantity {
			pool = pool[1:]
		} else {
			pool = append([]stock.Allocation{{VendorID: head.VendorID, Quantity: head.Quantity - n}}, pool[1:]...)
		}
	}
	return out, pool
}

func (c *Coordinator) requireVendor(ctx context.Context, uow UnitOfWork, tenantID, vendorID int64) error {
	v, err := uow.Vendors().GetForUpdate(ctx, tenantID, vendorID)
	if err != nil {
		return err
	}
	if v.Status != vendors.StatusActive {
		return shared.E(shared.KindNotFound, "coordinator", "vendor %d is deleted", vendorID)
	}
	return nil
}

// post appends a ledger entry unless the posting moves no money.
func (c *Coordinator) post(ctx context.Context, uow UnitOfWork, posting ledger.Posting) error {
	if posting.Zero() {
		return nil
	}
	_, err := c.book.Append(ctx, uow.Ledger(), posting)
	return err
}

// cash records a cashbook entry unless it moves no money.
func (c *Coordinator) cash(ctx context.Context, uow UnitOfWork, entry ledger.CashbookEntry) error {
	if entry.Zero() {
		return nil
	}
	_, err := c.book.RecordCashbook(ctx, uow.Ledger(), entry)
	return err
}

func nonNegative(op string, amounts ...decimal.Decimal) error {
	for _, a := range amounts {
		if a.IsNegative() {
			return shared.E(shared.KindInvalid, op, "amounts must not be negative")
		}
	}
	return nil
}
