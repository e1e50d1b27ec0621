package coordinator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/stock"
)

const importModule = "bulk_import"

// ImportResult summarises a bulk import.
type ImportResult struct {
	BatchID    uuid.UUID
	Created    int
	Updated    int
	PurchaseID int64
	Quantity   int64
}

// BulkImport creates or reprices products from workbook rows and seeds
// their opening quantities to one vendor as a single purchase. The whole
// batch is one atomic unit; a tenant runs one import at a time.
func (c *Coordinator) BulkImport(ctx context.Context, in BulkImportInput) (ImportResult, error) {
	p, err := c.begin(ctx, opBulkImport, &in)
	if err != nil {
		return ImportResult{}, err
	}
	for _, row := range in.Rows {
		if err := nonNegative(opBulkImport, row.Price, row.Amount); err != nil {
			return ImportResult{}, err
		}
	}
	if c.locker != nil {
		release, err := c.locker.Acquire(ctx, importModule, p.TenantID)
		if err != nil {
			return ImportResult{}, err
		}
		defer release()
	}

	var idemKey string
	if in.IdempotencyKey != "" && c.idem != nil {
		idemKey = shared.IdempotencyKey(p.TenantID, importModule, in.IdempotencyKey)
		if err := c.idem.CheckAndInsert(ctx, idemKey, importModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ImportResult{}, shared.Wrap(shared.KindInvalid, opBulkImport, err)
			}
			return ImportResult{}, err
		}
	}

	result := ImportResult{BatchID: uuid.New()}
	err = c.execute(ctx, opBulkImport, func(ctx context.Context, uow UnitOfWork) error {
		result = ImportResult{BatchID: result.BatchID}
		if err := c.requireVendor(ctx, uow, p.TenantID, in.VendorID); err != nil {
			return err
		}
		tx := uow.Stock()
		var items []stock.PurchaseItem
		for _, row := range in.Rows {
			product, err := tx.FindProductByName(ctx, p.TenantID, row.Product)
			switch {
			case shared.KindOf(err) == shared.KindNotFound:
				product, err = tx.InsertProduct(ctx, stock.Product{
					TenantID:     p.TenantID,
					Name:         row.Product,
					PricePerUnit: row.Price,
					Status:       stock.ProductActive,
				})
				if err != nil {
					return err
				}
				result.Created++
			case err != nil:
				return err
			default:
				if !row.Price.IsZero() && !row.Price.Equal(product.PricePerUnit) {
					if err := tx.UpdateProductPrice(ctx, p.TenantID, product.ID, row.Price); err != nil {
						return err
					}
				}
				result.Updated++
			}
			if row.Quantity > 0 {
				items = append(items, stock.PurchaseItem{ProductID: product.ID, TotalBottles: row.Quantity, Amount: row.Amount})
				result.Quantity += row.Quantity
			}
		}
		if len(items) == 0 {
			return nil
		}
		purchase, err := c.stock.ApplyPurchase(ctx, tx, stock.Purchase{
			TenantID:     p.TenantID,
			VendorID:     in.VendorID,
			Items:        items,
			PurchaseDate: in.PurchaseDate,
			CreatedBy:    p.UserID,
		})
		if err != nil {
			return err
		}
		result.PurchaseID = purchase.ID
		return c.post(ctx, uow, ledger.Posting{
			TenantID:   p.TenantID,
			EntityType: ledger.EntityVendor,
			EntityID:   in.VendorID,
			Credit:     purchase.Total(),
			Reference:  ledger.Reference{Type: ledger.RefPurchase, ID: purchase.ID},
		})
	})
	if err != nil {
		if idemKey != "" {
			if derr := c.idem.Delete(context.WithoutCancel(ctx), idemKey); derr != nil {
				c.logger.Warn("idempotency key release failed", slog.String("key", idemKey), slog.Any("error", derr))
			}
		}
		return ImportResult{}, err
	}
	c.committed(ctx, p, "product:bulk_import", "purchase", result.PurchaseID, map[string]any{
		"batch_id": result.BatchID.String(), "created": result.Created, "updated": result.Updated, "quantity": result.Quantity,
	})
	return result, nil
}
