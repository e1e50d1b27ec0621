package closing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/reports"
	"github.com/odyssey-erp/stockbook/internal/shared"
)

// Item is the reconciliation of one product for the closing day.
type Item struct {
	ProductID     int64
	MorningStock  int64
	Purchases     int64
	Sales         int64
	SystemStock   int64
	ClosingStock  int64
	PhysicalStock int64
	Discrepancy   int64
}

// NewItem derives the system stock and discrepancy from the day's movement.
func NewItem(productID, morning, purchases, sales, physical int64) Item {
	system := morning + purchases - sales
	return Item{
		ProductID:     productID,
		MorningStock:  morning,
		Purchases:     purchases,
		Sales:         sales,
		SystemStock:   system,
		ClosingStock:  physical,
		PhysicalStock: physical,
		Discrepancy:   physical - system,
	}
}

// StockClosing is the immutable end-of-day record for a tenant.
type StockClosing struct {
	ID            int64
	TenantID      int64
	ClosingDate   time.Time
	Items         []Item
	SaleID        int64
	CashCollected decimal.Decimal
	CreatedBy     int64
	CreatedAt     time.Time
}

// Shortage is stock the counted total falls behind the book.
type Shortage struct {
	ProductID int64
	Quantity  int64
}

// TxRepository persists closings.
type TxRepository interface {
	ClosingExists(ctx context.Context, tenantID int64, date time.Time) (bool, error)
	InsertClosing(ctx context.Context, c StockClosing) (StockClosing, error)
}

// Plan builds the closing items from the day's movement rows and the
// physical counts. Products without a count are taken at their current
// stock. Counts above current stock are rejected; the returned shortages
// are the quantities to write off.
func Plan(rows []reports.MovementRow, counts map[int64]int64) ([]Item, []Shortage, error) {
	const op = "closing: plan"
	known := make(map[int64]bool, len(rows))
	items := make([]Item, 0, len(rows))
	var shortages []Shortage
	for _, r := range rows {
		known[r.ProductID] = true
		physical, ok := counts[r.ProductID]
		if !ok {
			physical = r.CurrentStock
		}
		if physical < 0 {
			return nil, nil, shared.E(shared.KindInvalid, op, "product %d: negative count", r.ProductID)
		}
		if physical > r.CurrentStock {
			return nil, nil, shared.E(shared.KindInvariantViolation, op,
				"product %d: counted %d exceeds stock %d", r.ProductID, physical, r.CurrentStock)
		}
		items = append(items, NewItem(r.ProductID, r.MorningStock, r.Purchased, r.Sold, physical))
		if short := r.CurrentStock - physical; short > 0 {
			shortages = append(shortages, Shortage{ProductID: r.ProductID, Quantity: short})
		}
	}
	for productID := range counts {
		if !known[productID] {
			return nil, nil, shared.E(shared.KindNotFound, op, "product %d is not an active product", productID)
		}
	}
	return items, shortages, nil
}
