package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/shared"
)

type ledgerRepo struct {
	st *state
}

func (r ledgerRepo) GetHolderBalanceForUpdate(_ context.Context, tenantID int64, entityType ledger.EntityType, entityID int64) (decimal.Decimal, error) {
	bal, ok := r.st.holderBalance(tenantID, entityType, entityID)
	if !ok {
		return decimal.Zero, shared.E(shared.KindNotFound, "memory: get holder", "%s %d not found", entityType, entityID)
	}
	return bal, nil
}

func (r ledgerRepo) SetHolderBalance(_ context.Context, tenantID int64, entityType ledger.EntityType, entityID int64, balance decimal.Decimal) error {
	if _, ok := r.st.holderBalance(tenantID, entityType, entityID); !ok {
		return shared.E(shared.KindNotFound, "memory: set holder", "%s %d not found", entityType, entityID)
	}
	switch entityType {
	case ledger.EntityCustomer:
		c := r.st.customers[entityID]
		c.Balance = balance
		r.st.customers[entityID] = c
	case ledger.EntityVendor:
		v := r.st.vendors[entityID]
		v.OutstandingBalance = balance
		r.st.vendors[entityID] = v
	}
	return nil
}

func (r ledgerRepo) InsertEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	e.ID = r.st.nextID()
	r.st.entries = append(r.st.entries, e)
	return e, nil
}

func (r ledgerRepo) EntryByReference(_ context.Context, tenantID int64, ref ledger.Reference) (ledger.Entry, error) {
	for i := len(r.st.entries) - 1; i >= 0; i-- {
		e := r.st.entries[i]
		if e.TenantID == tenantID && e.ReferenceType == ref.Type && e.ReferenceID == ref.ID {
			return e, nil
		}
	}
	return ledger.Entry{}, shared.E(shared.KindNotFound, "memory: entry by reference", "no entry for %s %d", ref.Type, ref.ID)
}

func (r ledgerRepo) InsertCashbookEntry(_ context.Context, c ledger.CashbookEntry) (ledger.CashbookEntry, error) {
	c.ID = r.st.nextID()
	r.st.cashbook = append(r.st.cashbook, c)
	return c, nil
}

func (r ledgerRepo) InsertPayment(_ context.Context, p ledger.Payment) (ledger.Payment, error) {
	p.ID = r.st.nextID()
	r.st.payments[p.ID] = p
	return p, nil
}

func (r ledgerRepo) GetPaymentForUpdate(_ context.Context, tenantID, paymentID int64) (ledger.Payment, error) {
	p, ok := r.st.payments[paymentID]
	if !ok || p.TenantID != tenantID {
		return ledger.Payment{}, shared.E(shared.KindNotFound, "memory: get payment", "payment %d not found", paymentID)
	}
	return p, nil
}

func (r ledgerRepo) MarkPaymentCancelled(ctx context.Context, tenantID, paymentID, actorID int64, at time.Time) error {
	p, err := r.GetPaymentForUpdate(ctx, tenantID, paymentID)
	if err != nil {
		return err
	}
	if p.IsCancelled {
		return shared.E(shared.KindAlreadyReturned, "memory: cancel payment", "payment %d already cancelled", paymentID)
	}
	p.IsCancelled, p.CancelledBy, p.CancelledAt = true, actorID, at
	r.st.payments[paymentID] = p
	return nil
}

func (r ledgerRepo) ListEntries(_ context.Context, tenantID int64, entityType ledger.EntityType, entityID int64) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range r.st.entries {
		if e.TenantID == tenantID && e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r ledgerRepo) ListHolders(_ context.Context, tenantID int64) ([]ledger.Holder, error) {
	var out []ledger.Holder
	for _, c := range r.st.customers {
		if c.TenantID == tenantID {
			out = append(out, ledger.Holder{TenantID: tenantID, EntityType: ledger.EntityCustomer, EntityID: c.ID, Balance: c.Balance})
		}
	}
	for _, v := range r.st.vendors {
		if v.TenantID == tenantID {
			out = append(out, ledger.Holder{TenantID: tenantID, EntityType: ledger.EntityVendor, EntityID: v.ID, Balance: v.OutstandingBalance})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

func (r ledgerRepo) ListCashbook(_ context.Context, tenantID int64, from, to time.Time) ([]ledger.CashbookEntry, error) {
	var out []ledger.CashbookEntry
	for _, c := range r.st.cashbook {
		if c.TenantID == tenantID && !c.Date.Before(from) && c.Date.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}
