package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the kind of account holder.
type EntityType string

const (
	EntityCustomer EntityType = "customer"
	EntityVendor   EntityType = "vendor"
)

// Valid reports whether the entity type is known.
func (t EntityType) Valid() bool {
	return t == EntityCustomer || t == EntityVendor
}

// Reference types stamped on ledger and cashbook entries.
const (
	RefPurchase       = "purchase"
	RefPurchaseReturn = "purchase_return"
	RefSale           = "sale"
	RefSaleReturn     = "sale_return"
	RefPayment        = "payment"
	RefPaymentCancel  = "payment_cancel"
	RefClosing        = "closing"
)

// Reference points at the document that caused an entry.
type Reference struct {
	Type string
	ID   int64
}

// Entry is one append-only line of a holder's running balance.
type Entry struct {
	ID            int64
	TenantID      int64
	EntityType    EntityType
	EntityID      int64
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceType string
	ReferenceID   int64
	CreatedAt     time.Time
}

// Posting is a request to append an entry.
type Posting struct {
	TenantID   int64
	EntityType EntityType
	EntityID   int64
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Reference  Reference
}

// Zero reports whether the posting moves no money.
func (p Posting) Zero() bool {
	return p.Debit.IsZero() && p.Credit.IsZero()
}

// CashbookEntry records the money moved by one event.
type CashbookEntry struct {
	ID          int64
	TenantID    int64
	Date        time.Time
	SourceType  string
	ReferenceID int64
	CashIn      decimal.Decimal
	CashOut     decimal.Decimal
	OnlineIn    decimal.Decimal
	OnlineOut   decimal.Decimal
	CreatedAt   time.Time
}

// Zero reports whether the entry moves no money.
func (c CashbookEntry) Zero() bool {
	return c.CashIn.IsZero() && c.CashOut.IsZero() && c.OnlineIn.IsZero() && c.OnlineOut.IsZero()
}

// DailyTotals is the sum of a day's cashbook entries.
type DailyTotals struct {
	TenantID  int64
	Date      time.Time
	CashIn    decimal.Decimal
	CashOut   decimal.Decimal
	OnlineIn  decimal.Decimal
	OnlineOut decimal.Decimal
	Entries   int
}

// NetCash is cash in minus cash out.
func (d DailyTotals) NetCash() decimal.Decimal {
	return d.CashIn.Sub(d.CashOut)
}

// NetOnline is online in minus online out.
func (d DailyTotals) NetOnline() decimal.Decimal {
	return d.OnlineIn.Sub(d.OnlineOut)
}

// Payment settles part of a holder's outstanding balance.
type Payment struct {
	ID          int64
	TenantID    int64
	EntityType  EntityType
	EntityID    int64
	Cash        decimal.Decimal
	Online      decimal.Decimal
	PaidAt      time.Time
	IsCancelled bool
	CancelledBy int64
	CancelledAt time.Time
	CreatedBy   int64
	CreatedAt   time.Time
}

// Amount is the total settled.
func (p Payment) Amount() decimal.Decimal {
	return p.Cash.Add(p.Online)
}

// Holder is an account holder with its cached balance.
type Holder struct {
	TenantID   int64
	EntityType EntityType
	EntityID   int64
	Balance    decimal.Decimal
}
