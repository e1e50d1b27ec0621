package coordinator

import (
	"context"

	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/stock"
	"github.com/odyssey-erp/stockbook/internal/vendors"
)

// IntegrityReport lists the invariant failures found for a tenant.
type IntegrityReport struct {
	TenantID      int64
	RankError     string
	Mismatches    []stock.Mismatch
	BrokenHolders []ledger.Holder
}

// OK reports whether every invariant holds.
func (r IntegrityReport) OK() bool {
	return r.RankError == "" && len(r.Mismatches) == 0 && len(r.BrokenHolders) == 0
}

// Violations counts the failures found.
func (r IntegrityReport) Violations() int {
	n := len(r.Mismatches) + len(r.BrokenHolders)
	if r.RankError != "" {
		n++
	}
	return n
}

// CheckIntegrity verifies dense vendor ranks, stock conservation and every
// ledger balance chain of a tenant. It runs on behalf of the system and
// needs no principal.
func (c *Coordinator) CheckIntegrity(ctx context.Context, tenantID int64) (IntegrityReport, error) {
	var report IntegrityReport
	err := c.execute(ctx, opCheckIntegrity, func(ctx context.Context, uow UnitOfWork) error {
		report = IntegrityReport{TenantID: tenantID}
		active, err := uow.Vendors().ListActive(ctx, tenantID)
		if err != nil {
			return err
		}
		if err := vendors.Verify(active); err != nil {
			report.RankError = err.Error()
		}
		if report.Mismatches, err = c.stock.VerifyConservation(ctx, uow.Stock(), tenantID); err != nil {
			return err
		}
		report.BrokenHolders, err = c.book.VerifyHolders(ctx, uow.Ledger(), tenantID)
		return err
	})
	return report, err
}
