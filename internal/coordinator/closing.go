package coordinator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/closing"
	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/reports"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/stock"
)

// CloseStock reconciles the day's movement with the physical counts, writes
// shortages off as one adjustment sale, rolls morning stock forward to the
// next day and stores the closing. A day closes once.
func (c *Coordinator) CloseStock(ctx context.Context, in CloseStockInput) (closing.StockClosing, error) {
	p, err := c.begin(ctx, opCloseStock, &in)
	if err != nil {
		return closing.StockClosing{}, err
	}
	if err := nonNegative(opCloseStock, in.CashCollected); err != nil {
		return closing.StockClosing{}, err
	}
	counts := make(map[int64]int64, len(in.Counts))
	for _, ct := range in.Counts {
		if _, dup := counts[ct.ProductID]; dup {
			return closing.StockClosing{}, shared.E(shared.KindInvalid, opCloseStock, "product %d counted twice", ct.ProductID)
		}
		counts[ct.ProductID] = ct.Physical
	}
	day := ledger.DayOf(in.ClosingDate)
	next := day.AddDate(0, 0, 1)

	var result closing.StockClosing
	err = c.execute(ctx, opCloseStock, func(ctx context.Context, uow UnitOfWork) error {
		exists, err := uow.Closings().ClosingExists(ctx, p.TenantID, day)
		if err != nil {
			return err
		}
		if exists {
			return shared.E(shared.KindInvariantViolation, opCloseStock, "%s is already closed", day.Format("2006-01-02"))
		}
		rows, err := reports.Build(ctx, uow.Movements(), p.TenantID, reports.Window{Start: day, End: next})
		if err != nil {
			return err
		}
		items, shortages, err := closing.Plan(rows, counts)
		if err != nil {
			return err
		}
		var saleID int64
		if len(shortages) > 0 {
			adj, err := c.writeOff(ctx, uow, p, shortages, next.Add(-time.Second))
			if err != nil {
				return err
			}
			saleID = adj.ID
		}
		for _, it := range items {
			if err := uow.Stock().SetMorningStock(ctx, p.TenantID, it.ProductID, it.ClosingStock, next); err != nil {
				return err
			}
		}
		result, err = uow.Closings().InsertClosing(ctx, closing.StockClosing{
			TenantID:      p.TenantID,
			ClosingDate:   day,
			Items:         items,
			SaleID:        saleID,
			CashCollected: in.CashCollected,
			CreatedBy:     p.UserID,
			CreatedAt:     c.now(),
		})
		if err != nil {
			return err
		}
		return c.cash(ctx, uow, ledger.CashbookEntry{
			TenantID:    p.TenantID,
			Date:        day,
			SourceType:  ledger.RefClosing,
			ReferenceID: result.ID,
			CashIn:      in.CashCollected,
		})
	})
	if err != nil {
		return closing.StockClosing{}, err
	}
	c.committed(ctx, p, "stock:close", "stock_closing", result.ID, map[string]any{
		"closing_date": day.Format("2006-01-02"), "items": len(result.Items), "adjustment_sale_id": result.SaleID,
	})
	return result, nil
}

// writeOff records the shortages as one adjustment sale valued at list price.
func (c *Coordinator) writeOff(ctx context.Context, uow UnitOfWork, p shared.Principal, shortages []closing.Shortage, at time.Time) (stock.Sale, error) {
	items := make([]stock.SaleItem, 0, len(shortages))
	for _, s := range shortages {
		product, err := uow.Stock().GetProductForUpdate(ctx, p.TenantID, s.ProductID)
		if err != nil {
			return stock.Sale{}, err
		}
		allocs, err := c.stock.AllocateByPriority(ctx, uow.Stock(), p.TenantID, s.ProductID, s.Quantity)
		if err != nil {
			return stock.Sale{}, err
		}
		items = append(items, stock.SaleItem{
			ProductID:   s.ProductID,
			Quantity:    s.Quantity,
			Amount:      product.PricePerUnit.Mul(decimal.NewFromInt(s.Quantity)),
			Allocations: allocs,
		})
	}
	return c.stock.ApplySale(ctx, uow.Stock(), stock.Sale{
		TenantID:  p.TenantID,
		Type:      stock.SaleTypeAdjustment,
		Items:     items,
		SaleDate:  at,
		CreatedBy: p.UserID,
	})
}

// RecordMorningStock stores a manual opening snapshot for a product.
func (c *Coordinator) RecordMorningStock(ctx context.Context, in MorningStockInput) error {
	p, err := c.begin(ctx, opMorningStock, &in)
	if err != nil {
		return err
	}
	err = c.execute(ctx, opMorningStock, func(ctx context.Context, uow UnitOfWork) error {
		return c.stock.RecordMorningStock(ctx, uow.Stock(), p.TenantID, in.ProductID, in.Quantity, in.Date)
	})
	if err != nil {
		return err
	}
	c.committed(ctx, p, "stock:morning", "product", in.ProductID, map[string]any{"quantity": in.Quantity})
	return nil
}
