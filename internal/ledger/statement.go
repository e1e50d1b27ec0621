package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

// Statement returns a holder's entries in creation order after verifying
// the balance chain.
func (b *Book) Statement(ctx context.Context, tx TxRepository, tenantID int64, entityType EntityType, entityID int64) ([]Entry, error) {
	entries, err := tx.ListEntries(ctx, tenantID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if err := VerifyChain(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DailyCashbook sums the cashbook entries recorded for date.
func (b *Book) DailyCashbook(ctx context.Context, tx TxRepository, tenantID int64, date time.Time) (DailyTotals, error) {
	day := DayOf(date)
	entries, err := tx.ListCashbook(ctx, tenantID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return DailyTotals{}, err
	}
	return SumCashbook(tenantID, day, entries), nil
}

// SumCashbook totals the given entries.
func SumCashbook(tenantID int64, day time.Time, entries []CashbookEntry) DailyTotals {
	out := DailyTotals{TenantID: tenantID, Date: day}
	for _, c := range entries {
		out.CashIn = out.CashIn.Add(c.CashIn)
		out.CashOut = out.CashOut.Add(c.CashOut)
		out.OnlineIn = out.OnlineIn.Add(c.OnlineIn)
		out.OnlineOut = out.OnlineOut.Add(c.OnlineOut)
		out.Entries++
	}
	return out
}

// VerifyChain checks BalanceAfter[i] = BalanceAfter[i-1] + Credit[i] - Debit[i]
// starting from zero.
func VerifyChain(entries []Entry) error {
	prev := decimal.Zero
	for i, e := range entries {
		want := prev.Add(e.Credit).Sub(e.Debit)
		if !want.Equal(e.BalanceAfter) {
			return shared.E(shared.KindInvariantViolation, "ledger: verify chain",
				"entry %d (%s %d): balance %s, expected %s", i+1, e.EntityType, e.EntityID, e.BalanceAfter, want)
		}
		prev = e.BalanceAfter
	}
	return nil
}

// VerifyHolders checks every holder's chain and that the last balance
// matches the cached one.
func (b *Book) VerifyHolders(ctx context.Context, tx TxRepository, tenantID int64) ([]Holder, error) {
	holders, err := tx.ListHolders(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var broken []Holder
	for _, h := range holders {
		entries, err := tx.ListEntries(ctx, tenantID, h.EntityType, h.EntityID)
		if err != nil {
			return nil, err
		}
		last := decimal.Zero
		if n := len(entries); n > 0 {
			last = entries[n-1].BalanceAfter
		}
		if VerifyChain(entries) != nil || !last.Equal(h.Balance) {
			broken = append(broken, h)
		}
	}
	return broken, nil
}
