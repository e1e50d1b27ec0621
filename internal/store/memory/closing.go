package memory

import (
	"context"
	"time"

	"github.com/odyssey-erp/stockbook/internal/closing"
	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/shared"
)

type closingRepo struct {
	st *state
}

func (r closingRepo) ClosingExists(_ context.Context, tenantID int64, date time.Time) (bool, error) {
	day := ledger.DayOf(date)
	for _, c := range r.st.closings {
		if c.TenantID == tenantID && c.ClosingDate.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (r closingRepo) InsertClosing(ctx context.Context, c closing.StockClosing) (closing.StockClosing, error) {
	exists, _ := r.ClosingExists(ctx, c.TenantID, c.ClosingDate)
	if exists {
		return closing.StockClosing{}, shared.E(shared.KindInvariantViolation, "memory: insert closing", "closing for %s exists", c.ClosingDate.Format("2006-01-02"))
	}
	c.ID = r.st.nextID()
	c.ClosingDate = ledger.DayOf(c.ClosingDate)
	c.Items = append([]closing.Item(nil), c.Items...)
	r.st.closings = append(r.st.closings, c)
	return c, nil
}
