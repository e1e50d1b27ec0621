package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

// TxRepository exposes the transactional ledger operations used by Book.
type TxRepository interface {
	GetHolderBalanceForUpdate(ctx context.Context, tenantID int64, entityType EntityType, entityID int64) (decimal.Decimal, error)
	SetHolderBalance(ctx context.Context, tenantID int64, entityType EntityType, entityID int64, balance decimal.Decimal) error
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	// EntryByReference returns the latest entry stamped with the reference.
	EntryByReference(ctx context.Context, tenantID int64, ref Reference) (Entry, error)
	InsertCashbookEntry(ctx context.Context, c CashbookEntry) (CashbookEntry, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, tenantID, paymentID int64) (Payment, error)
	MarkPaymentCancelled(ctx context.Context, tenantID, paymentID, actorID int64, at time.Time) error
	ListEntries(ctx context.Context, tenantID int64, entityType EntityType, entityID int64) ([]Entry, error)
	ListHolders(ctx context.Context, tenantID int64) ([]Holder, error)
	ListCashbook(ctx context.Context, tenantID int64, from, to time.Time) ([]CashbookEntry, error)
}

// Book maintains balance-chained entries and the cashbook.
type Book struct {
	now func() time.Time
}

// NewBook constructs a Book.
func NewBook() *Book {
	return &Book{now: func() time.Time { return time.Now().UTC() }}
}

// Append writes one entry on top of the holder's cached balance and moves
// the cache to the new balance.
func (b *Book) Append(ctx context.Context, tx TxRepository, p Posting) (Entry, error) {
	const op = "ledger: append"
	if p.TenantID <= 0 || p.EntityID <= 0 || !p.EntityType.Valid() {
		return Entry{}, shared.E(shared.KindInvalid, op, "tenant and holder required")
	}
	if p.Debit.IsNegative() || p.Credit.IsNegative() {
		return Entry{}, shared.E(shared.KindInvalid, op, "debit and credit must not be negative")
	}
	if p.Zero() {
		return Entry{}, shared.E(shared.KindInvalid, op, "posting moves no money")
	}
	prev, err := tx.GetHolderBalanceForUpdate(ctx, p.TenantID, p.EntityType, p.EntityID)
	if err != nil {
		return Entry{}, err
	}
	next := prev.Add(p.Credit).Sub(p.Debit)
	entry, err := tx.InsertEntry(ctx, Entry{
		TenantID:      p.TenantID,
		EntityType:    p.EntityType,
		EntityID:      p.EntityID,
		Debit:         p.Debit,
		Credit:        p.Credit,
		BalanceAfter:  next,
		ReferenceType: p.Reference.Type,
		ReferenceID:   p.Reference.ID,
		CreatedAt:     b.now(),
	})
	if err != nil {
		return Entry{}, err
	}
	if err := tx.SetHolderBalance(ctx, p.TenantID, p.EntityType, p.EntityID, next); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Reverse appends the inverse of entry under a new reference.
func (b *Book) Reverse(ctx context.Context, tx TxRepository, entry Entry, ref Reference) (Entry, error) {
	return b.Append(ctx, tx, Posting{
		TenantID:   entry.TenantID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Debit:      entry.Credit,
		Credit:     entry.Debit,
		Reference:  ref,
	})
}

// ReverseReference reverses the entry recorded for original, if any. Documents
// that moved no money have no entry and reverse to nothing.
func (b *Book) ReverseReference(ctx context.Context, tx TxRepository, tenantID int64, original, ref Reference) (Entry, bool, error) {
	entry, err := tx.EntryByReference(ctx, tenantID, original)
	if shared.KindOf(err) == shared.KindNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	rev, err := b.Reverse(ctx, tx, entry, ref)
	if err != nil {
		return Entry{}, false, err
	}
	return rev, true, nil
}

// RecordCashbook appends one cashbook entry for an event.
func (b *Book) RecordCashbook(ctx context.Context, tx TxRepository, c CashbookEntry) (CashbookEntry, error) {
	const op = "ledger: cashbook"
	if c.TenantID <= 0 || c.SourceType == "" {
		return CashbookEntry{}, shared.E(shared.KindInvalid, op, "tenant and source required")
	}
	for _, v := range []decimal.Decimal{c.CashIn, c.CashOut, c.OnlineIn, c.OnlineOut} {
		if v.IsNegative() {
			return CashbookEntry{}, shared.E(shared.KindInvalid, op, "amounts must not be negative")
		}
	}
	now := b.now()
	if c.Date.IsZero() {
		c.Date = now
	}
	c.Date = DayOf(c.Date)
	c.CreatedAt = now
	return tx.InsertCashbookEntry(ctx, c)
}

// RecordPayment stores a payment, settles the holder's balance by its amount
// and books the money movement.
func (b *Book) RecordPayment(ctx context.Context, tx TxRepository, p Payment) (Payment, Entry, error) {
	const op = "ledger: record payment"
	if p.Cash.IsNegative() || p.Online.IsNegative() || p.Amount().IsZero() {
		return Payment{}, Entry{}, shared.E(shared.KindInvalid, op, "payment amount must be positive")
	}
	if !p.EntityType.Valid() || p.EntityID <= 0 {
		return Payment{}, Entry{}, shared.E(shared.KindInvalid, op, "holder required")
	}
	now := b.now()
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}
	p.CreatedAt = now
	p.IsCancelled = false
	stored, err := tx.InsertPayment(ctx, p)
	if err != nil {
		return Payment{}, Entry{}, err
	}
	entry, err := b.Append(ctx, tx, Posting{
		TenantID:   p.TenantID,
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Debit:      p.Amount(),
		Reference:  Reference{Type: RefPayment, ID: stored.ID},
	})
	if err != nil {
		return Payment{}, Entry{}, err
	}
	if _, err := b.RecordCashbook(ctx, tx, paymentCashbook(stored, RefPayment, false)); err != nil {
		return Payment{}, Entry{}, err
	}
	return stored, entry, nil
}

// CancelPayment flips the payment to cancelled and posts the inverse entry
// and cash movement. Cancellation is one-way.
func (b *Book) CancelPayment(ctx context.Context, tx TxRepository, tenantID, paymentID, actorID int64) (Payment, Entry, error) {
	const op = "ledger: cancel payment"
	p, err := tx.GetPaymentForUpdate(ctx, tenantID, paymentID)
	if err != nil {
		return Payment{}, Entry{}, err
	}
	if p.IsCancelled {
		return Payment{}, Entry{}, shared.E(shared.KindAlreadyReturned, op, "payment %d already cancelled", paymentID)
	}
	at := b.now()
	if err := tx.MarkPaymentCancelled(ctx, tenantID, paymentID, actorID, at); err != nil {
		return Payment{}, Entry{}, err
	}
	p.IsCancelled = true
	p.CancelledBy = actorID
	p.CancelledAt = at
	entry, _, err := b.ReverseReference(ctx, tx, tenantID,
		Reference{Type: RefPayment, ID: paymentID}, Reference{Type: RefPaymentCancel, ID: paymentID})
	if err != nil {
		return Payment{}, Entry{}, err
	}
	cancel := paymentCashbook(p, RefPaymentCancel, true)
	cancel.Date = at
	if _, err := b.RecordCashbook(ctx, tx, cancel); err != nil {
		return Payment{}, Entry{}, err
	}
	return p, entry, nil
}

// paymentCashbook books customer receipts as money in and vendor
// settlements as money out; inverse swaps the direction.
func paymentCashbook(p Payment, source string, inverse bool) CashbookEntry {
	c := CashbookEntry{TenantID: p.TenantID, Date: p.PaidAt, SourceType: source, ReferenceID: p.ID}
	incoming := p.EntityType == EntityCustomer
	if inverse {
		incoming = !incoming
	}
	if incoming {
		c.CashIn, c.OnlineIn = p.Cash, p.Online
	} else {
		c.CashOut, c.OnlineOut = p.Cash, p.Online
	}
	return c
}

// DayOf truncates t to midnight UTC.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
