package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/stock"
	"github.com/odyssey-erp/stockbook/internal/store/memory"
	"github.com/odyssey-erp/stockbook/internal/vendors"
)

const tenant = int64(1)

type env struct {
	store   *memory.Store
	ledger  *stock.Ledger
	ranks   *vendors.RankStore
	product int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	return &env{
		store:   store,
		ledger:  stock.NewLedger(),
		ranks:   vendors.NewRankStore(),
		product: store.AddProduct(tenant, "Lager", decimal.NewFromInt(2)),
	}
}

func (e *env) tx(t *testing.T, fn func(ctx context.Context, uow coordinator.UnitOfWork) error) error {
	t.Helper()
	return e.store.WithTx(context.Background(), fn)
}

func (e *env) vendor(t *testing.T, name string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		v, err := e.ranks.Create(ctx, uow.Vendors(), vendors.CreateInput{TenantID: tenant, Name: name})
		id = v.ID
		return err
	}))
	return id
}

func (e *env) stockIn(t *testing.T, vendorID, qty int64) stock.Purchase {
	t.Helper()
	var p stock.Purchase
	require.NoError(t, e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		var err error
		p, err = e.ledger.ApplyPurchase(ctx, uow.Stock(), stock.Purchase{
			TenantID: tenant,
			VendorID: vendorID,
			Items:    []stock.PurchaseItem{{ProductID: e.product, TotalBottles: qty, Amount: decimal.NewFromInt(qty)}},
		})
		return err
	}))
	return p
}

func (e *env) allocate(t *testing.T, qty int64) ([]stock.Allocation, error) {
	t.Helper()
	var out []stock.Allocation
	err := e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		var err error
		out, err = e.ledger.AllocateByPriority(ctx, uow.Stock(), tenant, e.product, qty)
		return err
	})
	return out, err
}

func TestAllocateByPriorityDrawsDeletedVendorsLast(t *testing.T) {
	e := newEnv(t)
	v1 := e.vendor(t, "V1")
	v2 := e.vendor(t, "V2")
	v3 := e.vendor(t, "V3")
	e.stockIn(t, v1, 3)
	e.stockIn(t, v2, 4)
	e.stockIn(t, v3, 5)

	require.NoError(t, e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		_, err := e.ranks.SoftDelete(ctx, uow.Vendors(), tenant, v1)
		return err
	}))

	got, err := e.allocate(t, 10)
	require.NoError(t, err)
	require.Equal(t, []stock.Allocation{{VendorID: v2, Quantity: 4}, {VendorID: v3, Quantity: 5}, {VendorID: v1, Quantity: 1}}, got)

	_, err = e.allocate(t, 13)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	_, err = e.allocate(t, 0)
	require.ErrorIs(t, err, shared.ErrInvalid)
}

func TestApplySaleRequiresExactAllocation(t *testing.T) {
	e := newEnv(t)
	v1 := e.vendor(t, "V1")
	e.stockIn(t, v1, 5)

	err := e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		_, err := e.ledger.ApplySale(ctx, uow.Stock(), stock.Sale{
			TenantID: tenant,
			Items:    []stock.SaleItem{{ProductID: e.product, Quantity: 3, Allocations: []stock.Allocation{{VendorID: v1, Quantity: 2}}}},
		})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInvariantViolation)

	err = e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		_, err := e.ledger.ApplySale(ctx, uow.Stock(), stock.Sale{
			TenantID: tenant,
			Items:    []stock.SaleItem{{ProductID: e.product, Quantity: 6, Allocations: []stock.Allocation{{VendorID: v1, Quantity: 6}}}},
		})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	p, ok := e.store.Product(tenant, e.product)
	require.True(t, ok)
	require.Equal(t, int64(5), p.CurrentStock)
}

func TestReverseSaleRestoresSharesAndRecordsReturn(t *testing.T) {
	e := newEnv(t)
	v1 := e.vendor(t, "V1")
	v2 := e.vendor(t, "V2")
	e.stockIn(t, v1, 2)
	e.stockIn(t, v2, 2)

	var sale stock.Sale
	require.NoError(t, e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		allocs, err := e.ledger.AllocateByPriority(ctx, uow.Stock(), tenant, e.product, 3)
		if err != nil {
			return err
		}
		sale, err = e.ledger.ApplySale(ctx, uow.Stock(), stock.Sale{
			TenantID: tenant,
			Items:    []stock.SaleItem{{ProductID: e.product, Quantity: 3, Amount: decimal.NewFromInt(6), Allocations: allocs}},
		})
		return err
	}))
	require.Equal(t, stock.SaleTypeSale, sale.Type)
	require.Equal(t, int64(3), sale.Quantity())

	var original, ret stock.Sale
	require.NoError(t, e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		var err error
		original, ret, err = e.ledger.ReverseSale(ctx, uow.Stock(), tenant, sale.ID, 9)
		return err
	}))
	require.True(t, original.IsReturned)
	require.Equal(t, int64(9), original.ReturnedBy)
	require.Equal(t, stock.SaleTypeReturn, ret.Type)
	require.Equal(t, sale.ID, ret.ReferenceSaleID)
	require.Equal(t, sale.Items[0].Allocations, ret.Items[0].Allocations)
	require.Equal(t, int64(2), e.store.VendorStock(tenant, v1, e.product))
	require.Equal(t, int64(2), e.store.VendorStock(tenant, v2, e.product))

	err := e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		_, _, err := e.ledger.ReverseSale(ctx, uow.Stock(), tenant, ret.ID, 9)
		return err
	})
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
}

func TestReverseSaleBeforeMorningSnapshotIsRejected(t *testing.T) {
	e := newEnv(t)
	v1 := e.vendor(t, "V1")
	e.stockIn(t, v1, 4)
	saleDay := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	var sale stock.Sale
	require.NoError(t, e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		var err error
		sale, err = e.ledger.ApplySale(ctx, uow.Stock(), stock.Sale{
			TenantID: tenant,
			SaleDate: saleDay,
			Items:    []stock.SaleItem{{ProductID: e.product, Quantity: 1, Allocations: []stock.Allocation{{VendorID: v1, Quantity: 1}}}},
		})
		if err != nil {
			return err
		}
		return e.ledger.RecordMorningStock(ctx, uow.Stock(), tenant, e.product, 3, saleDay.Add(6*time.Hour))
	}))

	err := e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		_, _, err := e.ledger.ReverseSale(ctx, uow.Stock(), tenant, sale.ID, 1)
		return err
	})
	require.ErrorIs(t, err, shared.ErrTemporalConstraint)
}

func TestVerifyConservationAndTotals(t *testing.T) {
	e := newEnv(t)
	v1 := e.vendor(t, "V1")
	p := e.stockIn(t, v1, 7)
	require.True(t, p.Total().Equal(decimal.NewFromInt(7)))
	require.True(t, p.Paid().IsZero())

	require.NoError(t, e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		mismatches, err := e.ledger.VerifyConservation(ctx, uow.Stock(), tenant)
		require.Empty(t, mismatches)
		return err
	}))

	require.NoError(t, e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		_, err := e.ledger.ReversePurchase(ctx, uow.Stock(), tenant, p.ID, 1)
		return err
	}))
	err := e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		_, err := e.ledger.ReversePurchase(ctx, uow.Stock(), tenant, p.ID, 1)
		return err
	})
	require.ErrorIs(t, err, shared.ErrAlreadyReturned)
}

func TestAllocateRemainingSkipsReservedShares(t *testing.T) {
	e := newEnv(t)
	v1 := e.vendor(t, "V1")
	v2 := e.vendor(t, "V2")
	e.stockIn(t, v1, 6)
	e.stockIn(t, v2, 4)

	var got []stock.Allocation
	require.NoError(t, e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		var err error
		got, err = e.ledger.AllocateRemaining(ctx, uow.Stock(), tenant, e.product, 5, map[int64]int64{v1: 4})
		return err
	}))
	require.Equal(t, []stock.Allocation{{VendorID: v1, Quantity: 2}, {VendorID: v2, Quantity: 3}}, got)

	err := e.tx(t, func(ctx context.Context, uow coordinator.UnitOfWork) error {
		_, err := e.ledger.AllocateRemaining(ctx, uow.Stock(), tenant, e.product, 5, map[int64]int64{v1: 6})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}
