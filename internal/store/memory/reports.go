package memory

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/stockbook/internal/reports"
	"github.com/odyssey-erp/stockbook/internal/stock"
)

type movementRepo struct {
	st *state
}

func (r movementRepo) ActiveProducts(_ context.Context, tenantID int64) ([]reports.Snapshot, error) {
	var out []reports.Snapshot
	for _, p := range r.st.products {
		if p.TenantID != tenantID || p.Status != stock.ProductActive {
			continue
		}
		out = append(out, reports.Snapshot{
			ProductID:        p.ID,
			Name:             p.Name,
			CurrentStock:     p.CurrentStock,
			MorningStock:     p.MorningStock,
			MorningStockDate: p.MorningStockLastUpdatedDate,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func (r movementRepo) PurchasedQuantities(_ context.Context, tenantID int64, w reports.Window) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, p := range r.st.purchases {
		if p.TenantID != tenantID || p.IsReturned || !within(w, p.PurchaseDate) {
			continue
		}
		for _, it := range p.Items {
			out[it.ProductID] += it.TotalBottles
		}
	}
	return out, nil
}

func (r movementRepo) SoldQuantities(_ context.Context, tenantID int64, w reports.Window) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, s := range r.st.sales {
		if s.TenantID != tenantID || s.IsReturned || !within(w, s.SaleDate) {
			continue
		}
		if s.Type != stock.SaleTypeSale && s.Type != stock.SaleTypeAdjustment {
			continue
		}
		for _, it := range s.Items {
			out[it.ProductID] += it.Quantity
		}
	}
	return out, nil
}

func within(w reports.Window, t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// committedSource reads the committed state outside any transaction.
type committedSource struct {
	s *Store
}

func (c committedSource) repo() movementRepo {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return movementRepo{st: c.s.state}
}

func (c committedSource) ActiveProducts(ctx context.Context, tenantID int64) ([]reports.Snapshot, error) {
	return c.repo().ActiveProducts(ctx, tenantID)
}

func (c committedSource) PurchasedQuantities(ctx context.Context, tenantID int64, w reports.Window) (map[int64]int64, error) {
	return c.repo().PurchasedQuantities(ctx, tenantID, w)
}

func (c committedSource) SoldQuantities(ctx context.Context, tenantID int64, w reports.Window) (map[int64]int64, error) {
	return c.repo().SoldQuantities(ctx, tenantID, w)
}
