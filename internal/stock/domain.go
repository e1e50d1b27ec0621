package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product statuses.
const (
	ProductActive  = "active"
	ProductDeleted = "deleted"
)

// Product is a stocked item. CurrentStock only changes through Ledger.
type Product struct {
	TenantID                    int64
	ID                          int64
	Name                        string
	CurrentStock                int64
	PricePerUnit                decimal.Decimal
	MorningStock                int64
	MorningStockLastUpdatedDate time.Time
	Status                      string
}

// VendorStock is the share of a product's stock attributed to one vendor.
type VendorStock struct {
	TenantID     int64
	VendorID     int64
	ProductID    int64
	CurrentStock int64
}

// PurchaseItem is one product line of a purchase.
type PurchaseItem struct {
	ProductID    int64
	TotalBottles int64
	Amount       decimal.Decimal
}

// Purchase records goods received from a vendor.
type Purchase struct {
	TenantID     int64
	ID           int64
	VendorID     int64
	Items        []PurchaseItem
	PaidCash     decimal.Decimal
	PaidOnline   decimal.Decimal
	PurchaseDate time.Time
	IsReturned   bool
	ReturnedBy   int64
	ReturnedAt   time.Time
	CreatedBy    int64
	CreatedAt    time.Time
}

// Total sums the item amounts.
func (p Purchase) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range p.Items {
		total = total.Add(it.Amount)
	}
	return total
}

// Paid sums cash and online payments.
func (p Purchase) Paid() decimal.Decimal {
	return p.PaidCash.Add(p.PaidOnline)
}

// SaleType distinguishes regular sales from their compensating records.
type SaleType string

const (
	SaleTypeSale       SaleType = "sale"
	SaleTypeReturn     SaleType = "return"
	SaleTypeAdjustment SaleType = "adjustment"
)

// Allocation is the quantity of a sale line drawn from one vendor.
type Allocation struct {
	VendorID int64
	Quantity int64
}

// SaleItem is one product line of a sale.
type SaleItem struct {
	ProductID   int64
	Quantity    int64
	Amount      decimal.Decimal
	Allocations []Allocation
}

// Sale records goods leaving stock. CustomerID is zero for walk-in sales.
type Sale struct {
	TenantID        int64
	ID              int64
	Type            SaleType
	CustomerID      int64
	Items           []SaleItem
	PaidCash        decimal.Decimal
	PaidOnline      decimal.Decimal
	SaleDate        time.Time
	IsReturned      bool
	IsVoided        bool
	ReferenceSaleID int64
	ReturnedBy      int64
	ReturnedAt      time.Time
	CreatedBy       int64
	CreatedAt       time.Time
}

// Total sums the item amounts.
func (s Sale) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.Amount)
	}
	return total
}

// Paid sums cash and online payments.
func (s Sale) Paid() decimal.Decimal {
	return s.PaidCash.Add(s.PaidOnline)
}

// Quantity sums the item quantities.
func (s Sale) Quantity() int64 {
	var q int64
	for _, it := range s.Items {
		q += it.Quantity
	}
	return q
}

// Mismatch describes a product whose vendor shares do not add up.
type Mismatch struct {
	ProductID    int64
	CurrentStock int64
	VendorSum    int64
}
