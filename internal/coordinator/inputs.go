package coordinator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/importer"
)

const (
	opCreateVendor         = "create_vendor"
	opChangeVendorPriority = "change_vendor_priority"
	opDeleteVendor         = "delete_vendor"
	opListVendors          = "list_vendors"
	opRecordPurchase       = "record_purchase"
	opReturnPurchase       = "return_purchase"
	opRecordSale           = "record_sale"
	opReturnSale           = "return_sale"
	opRecordPayment        = "record_payment"
	opCancelPayment        = "cancel_payment"
	opBulkImport           = "bulk_import"
	opCloseStock           = "close_stock"
	opMorningStock         = "record_morning_stock"
	opStatement            = "statement"
	opDailyCashbook        = "daily_cashbook"
	opCheckIntegrity       = "check_integrity"
)

// CreateVendorInput adds a vendor. A zero Priority appends it last.
type CreateVendorInput struct {
	Name     string `validate:"required,max=200"`
	Priority int    `validate:"gte=0"`
}

// ChangeVendorPriorityInput moves a vendor to a new rank.
type ChangeVendorPriorityInput struct {
	VendorID int64 `validate:"required,gt=0"`
	Priority int   `validate:"required,gt=0"`
}

// PurchaseItemInput is one line of a purchase.
type PurchaseItemInput struct {
	ProductID int64           `validate:"required,gt=0"`
	Quantity  int64           `validate:"required,gt=0"`
	Amount    decimal.Decimal `validate:"-"`
}

// PurchaseInput records goods bought from a vendor.
type PurchaseInput struct {
	VendorID     int64               `validate:"required,gt=0"`
	Items        []PurchaseItemInput `validate:"required,min=1,dive"`
	PaidCash     decimal.Decimal     `validate:"-"`
	PaidOnline   decimal.Decimal     `validate:"-"`
	PurchaseDate time.Time
}

// AllocationInput draws part of a sale line from one vendor.
type AllocationInput struct {
	VendorID int64 `validate:"required,gt=0"`
	Quantity int64 `validate:"required,gt=0"`
}

// SaleItemInput is one line of a sale. Without allocations the quantity is
// drawn from vendors in priority order.
type SaleItemInput struct {
	ProductID   int64             `validate:"required,gt=0"`
	Quantity    int64             `validate:"required,gt=0"`
	Amount      decimal.Decimal   `validate:"-"`
	Allocations []AllocationInput `validate:"omitempty,dive"`
}

// SaleInput records goods sold. CustomerID is zero for walk-in sales.
type SaleInput struct {
	CustomerID int64           `validate:"gte=0"`
	Items      []SaleItemInput `validate:"required,min=1,dive"`
	PaidCash   decimal.Decimal `validate:"-"`
	PaidOnline decimal.Decimal `validate:"-"`
	SaleDate   time.Time
}

// PaymentInput settles a holder's balance.
type PaymentInput struct {
	EntityType string          `validate:"required,oneof=customer vendor"`
	EntityID   int64           `validate:"required,gt=0"`
	Cash       decimal.Decimal `validate:"-"`
	Online     decimal.Decimal `validate:"-"`
	PaidAt     time.Time
}

// BulkImportInput creates or updates products from workbook rows and seeds
// their opening stock to one vendor.
type BulkImportInput struct {
	VendorID       int64          `validate:"required,gt=0"`
	Rows           []importer.Row `validate:"required,min=1,dive"`
	IdempotencyKey string         `validate:"max=200"`
	PurchaseDate   time.Time
}

// CountInput is the physical count of one product.
type CountInput struct {
	ProductID int64 `validate:"required,gt=0"`
	Physical  int64 `validate:"gte=0"`
}

// CloseStockInput closes a business day.
type CloseStockInput struct {
	ClosingDate   time.Time       `validate:"required"`
	Counts        []CountInput    `validate:"omitempty,dive"`
	CashCollected decimal.Decimal `validate:"-"`
}

// MorningStockInput records a manual opening snapshot.
type MorningStockInput struct {
	ProductID int64 `validate:"required,gt=0"`
	Quantity  int64 `validate:"gte=0"`
	Date      time.Time
}
