package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/store/memory"
	"github.com/odyssey-erp/stockbook/internal/stock"
)

const tenant = int64(1)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func principalCtx(tenantID int64) context.Context {
	return shared.ContextWithPrincipal(context.Background(), shared.Principal{TenantID: tenantID, UserID: 7, Role: "owner"})
}

type fixture struct {
	store *memory.Store
	c     *coordinator.Coordinator
	ctx   context.Context
}

func newFixture(t *testing.T, opts ...coordinator.Option) *fixture {
	t.Helper()
	store := memory.New()
	opts = append([]coordinator.Option{coordinator.WithAudit(store), coordinator.WithIdempotency(store)}, opts...)
	return &fixture{
		store: store,
		c:     coordinator.New(store, quietLogger(), coordinator.Config{MaxAttempts: 3}, opts...),
		ctx:   principalCtx(tenant),
	}
}

func (f *fixture) vendor(t *testing.T, name string) int64 {
	t.Helper()
	v, err := f.c.CreateVendor(f.ctx, coordinator.CreateVendorInput{Name: name})
	require.NoError(t, err)
	return v.ID
}

func (f *fixture) purchase(t *testing.T, vendorID, productID, qty int64, amount string, at time.Time) stock.Purchase {
	t.Helper()
	p, err := f.c.RecordPurchase(f.ctx, coordinator.PurchaseInput{
		VendorID:     vendorID,
		Items:        []coordinator.PurchaseItemInput{{ProductID: productID, Quantity: qty, Amount: money(amount)}},
		PurchaseDate: at,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stockOf(t *testing.T, productID int64) int64 {
	t.Helper()
	p, ok := f.store.Product(tenant, productID)
	require.True(t, ok)
	return p.CurrentStock
}

func (f *fixture) requireIntegrity(t *testing.T) {
	t.Helper()
	report, err := f.c.CheckIntegrity(context.Background(), tenant)
	require.NoError(t, err)
	require.True(t, report.OK(), "%+v", report)
}

func TestPurchaseReturnIsTerminal(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	product := f.store.AddProduct(tenant, "Lager", money("2"))

	p := f.purchase(t, v1, product, 50, "100", time.Time{})
	require.Equal(t, int64(50), f.stockOf(t, product))
	require.Equal(t, int64(50), f.store.VendorStock(tenant, v1, product))
	require.True(t, f.store.Balance(tenant, ledger.EntityVendor, v1).Equal(money("100")))

	returned, err := f.c.ReturnPurchase(f.ctx, p.ID)
	require.NoError(t, err)
	require.True(t, returned.IsReturned)
	require.Equal(t, int64(7), returned.ReturnedBy)
	require.Zero(t, f.stockOf(t, product))
	require.Zero(t, f.store.VendorStock(tenant, v1, product))
	require.True(t, f.store.Balance(tenant, ledger.EntityVendor, v1).IsZero())

	_, err = f.c.ReturnPurchase(f.ctx, p.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyReturned)
	require.Zero(t, f.stockOf(t, product))
	f.requireIntegrity(t)
}

func TestReturnPurchaseRejectsSoldStock(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	product := f.store.AddProduct(tenant, "Lager", money("2"))
	p := f.purchase(t, v1, product, 10, "20", time.Time{})

	_, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{Items: []coordinator.SaleItemInput{{ProductID: product, Quantity: 4, Amount: money("8")}}})
	require.NoError(t, err)

	_, err = f.c.ReturnPurchase(f.ctx, p.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(6), f.stockOf(t, product))
	f.requireIntegrity(t)
}

func TestSaleAllocatesByPriorityAndReturnRestores(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	v2 := f.vendor(t, "V2")
	product := f.store.AddProduct(tenant, "Lager", money("2"))
	f.purchase(t, v1, product, 6, "0", time.Time{})
	f.purchase(t, v2, product, 10, "0", time.Time{})

	sale, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{
		Items: []coordinator.SaleItemInput{{ProductID: product, Quantity: 10, Amount: money("20")}},
	})
	require.NoError(t, err)
	require.Equal(t, []stock.Allocation{{VendorID: v1, Quantity: 6}, {VendorID: v2, Quantity: 4}}, sale.Items[0].Allocations)
	require.Equal(t, int64(6), f.stockOf(t, product))
	require.Zero(t, f.store.VendorStock(tenant, v1, product))
	require.Equal(t, int64(6), f.store.VendorStock(tenant, v2, product))

	ret, err := f.c.ReturnSale(f.ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, stock.SaleTypeReturn, ret.Type)
	require.Equal(t, sale.ID, ret.ReferenceSaleID)
	require.True(t, ret.Total().Equal(sale.Total()))
	require.Equal(t, int64(16), f.stockOf(t, product))
	require.Equal(t, int64(6), f.store.VendorStock(tenant, v1, product))
	require.Equal(t, int64(10), f.store.VendorStock(tenant, v2, product))

	_, err = f.c.ReturnSale(f.ctx, sale.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyReturned)
	_, err = f.c.ReturnSale(f.ctx, ret.ID)
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
	f.requireIntegrity(t)
}

func TestSaleSplitsOneAllocationPassAcrossLines(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	v2 := f.vendor(t, "V2")
	product := f.store.AddProduct(tenant, "Lager", money("1"))
	f.purchase(t, v1, product, 3, "0", time.Time{})
	f.purchase(t, v2, product, 3, "0", time.Time{})

	sale, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{Items: []coordinator.SaleItemInput{
		{ProductID: product, Quantity: 2},
		{ProductID: product, Quantity: 3},
	}})
	require.NoError(t, err)
	require.Equal(t, []stock.Allocation{{VendorID: v1, Quantity: 2}}, sale.Items[0].Allocations)
	require.Equal(t, []stock.Allocation{{VendorID: v1, Quantity: 1}, {VendorID: v2, Quantity: 2}}, sale.Items[1].Allocations)
	require.Equal(t, int64(1), f.stockOf(t, product))
	f.requireIntegrity(t)
}

func TestSaleWithExplicitAllocations(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	v2 := f.vendor(t, "V2")
	product := f.store.AddProduct(tenant, "Lager", money("1"))
	f.purchase(t, v1, product, 5, "0", time.Time{})
	f.purchase(t, v2, product, 5, "0", time.Time{})

	_, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{Items: []coordinator.SaleItemInput{{
		ProductID: product, Quantity: 4,
		Allocations: []coordinator.AllocationInput{{VendorID: v2, Quantity: 3}},
	}}})
	require.ErrorIs(t, err, shared.ErrInvariantViolation)

	_, err = f.c.RecordSale(f.ctx, coordinator.SaleInput{Items: []coordinator.SaleItemInput{{
		ProductID: product, Quantity: 6,
		Allocations: []coordinator.AllocationInput{{VendorID: v2, Quantity: 6}},
	}}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(10), f.stockOf(t, product))

	_, err = f.c.RecordSale(f.ctx, coordinator.SaleInput{Items: []coordinator.SaleItemInput{{
		ProductID: product, Quantity: 4,
		Allocations: []coordinator.AllocationInput{{VendorID: v2, Quantity: 3}, {VendorID: v1, Quantity: 1}},
	}}})
	require.NoError(t, err)
	require.Equal(t, int64(4), f.store.VendorStock(tenant, v1, product))
	require.Equal(t, int64(2), f.store.VendorStock(tenant, v2, product))
	f.requireIntegrity(t)
}

func TestSaleMixingExplicitAndPriorityLines(t *testing.T) {
	f := newFixture(t)
	a := f.vendor(t, "A")
	b := f.vendor(t, "B")
	product := f.store.AddProduct(tenant, "Lager", money("1"))
	f.purchase(t, a, product, 6, "0", time.Time{})
	f.purchase(t, b, product, 4, "0", time.Time{})

	sale, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{Items: []coordinator.SaleItemInput{
		{ProductID: product, Quantity: 6, Allocations: []coordinator.AllocationInput{{VendorID: a, Quantity: 6}}},
		{ProductID: product, Quantity: 4},
	}})
	require.NoError(t, err)
	require.Equal(t, []stock.Allocation{{VendorID: b, Quantity: 4}}, sale.Items[1].Allocations)
	require.Equal(t, int64(0), f.stockOf(t, product))
	require.Equal(t, int64(0), f.store.VendorStock(tenant, a, product))
	require.Equal(t, int64(0), f.store.VendorStock(tenant, b, product))
	f.requireIntegrity(t)
}

func TestSaleMixingLinesRejectsOverdraw(t *testing.T) {
	f := newFixture(t)
	a := f.vendor(t, "A")
	b := f.vendor(t, "B")
	product := f.store.AddProduct(tenant, "Lager", money("1"))
	f.purchase(t, a, product, 6, "0", time.Time{})
	f.purchase(t, b, product, 4, "0", time.Time{})

	_, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{Items: []coordinator.SaleItemInput{
		{ProductID: product, Quantity: 4, Allocations: []coordinator.AllocationInput{{VendorID: a, Quantity: 4}}},
		{ProductID: product, Quantity: 7},
	}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(10), f.stockOf(t, product))
}

func TestInsufficientStockLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	lager := f.store.AddProduct(tenant, "Lager", money("1"))
	stout := f.store.AddProduct(tenant, "Stout", money("1"))
	f.purchase(t, v1, lager, 5, "0", time.Time{})
	f.purchase(t, v1, stout, 1, "0", time.Time{})

	_, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{Items: []coordinator.SaleItemInput{
		{ProductID: lager, Quantity: 5},
		{ProductID: stout, Quantity: 2},
	}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(5), f.stockOf(t, lager))
	require.Equal(t, int64(1), f.stockOf(t, stout))
}

func TestCustomerSaleAndReturnNetToZero(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	product := f.store.AddProduct(tenant, "Lager", money("2.50"))
	customer := f.store.AddCustomer(tenant, "Bar Nine")
	f.purchase(t, v1, product, 20, "40", time.Time{})

	sale, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{
		CustomerID: customer,
		Items:      []coordinator.SaleItemInput{{ProductID: product, Quantity: 8, Amount: money("20")}},
		PaidCash:   money("5"),
	})
	require.NoError(t, err)
	require.True(t, f.store.Balance(tenant, ledger.EntityCustomer, customer).Equal(money("15")))

	_, err = f.c.ReturnSale(f.ctx, sale.ID)
	require.NoError(t, err)
	require.True(t, f.store.Balance(tenant, ledger.EntityCustomer, customer).IsZero())
	require.Equal(t, int64(20), f.stockOf(t, product))

	entries, err := f.c.Statement(f.ctx, ledger.EntityCustomer, customer)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ledger.RefSale, entries[0].ReferenceType)
	require.Equal(t, ledger.RefSaleReturn, entries[1].ReferenceType)
	require.NoError(t, ledger.VerifyChain(entries))
	f.requireIntegrity(t)
}

func TestSaleToUnknownCustomerRollsBack(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	product := f.store.AddProduct(tenant, "Lager", money("1"))
	f.purchase(t, v1, product, 5, "0", time.Time{})

	_, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{
		CustomerID: 999,
		Items:      []coordinator.SaleItemInput{{ProductID: product, Quantity: 2, Amount: money("2")}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, int64(5), f.stockOf(t, product))
}

func TestPaymentsChainAndCancelOnce(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	product := f.store.AddProduct(tenant, "Lager", money("1"))
	f.purchase(t, v1, product, 10, "100", time.Time{})

	pay, err := f.c.RecordPayment(f.ctx, coordinator.PaymentInput{EntityType: "vendor", EntityID: v1, Cash: money("30"), Online: money("10")})
	require.NoError(t, err)
	require.True(t, f.store.Balance(tenant, ledger.EntityVendor, v1).Equal(money("60")))

	cancelled, err := f.c.CancelPayment(f.ctx, pay.ID)
	require.NoError(t, err)
	require.True(t, cancelled.IsCancelled)
	require.True(t, f.store.Balance(tenant, ledger.EntityVendor, v1).Equal(money("100")))

	_, err = f.c.CancelPayment(f.ctx, pay.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyReturned)

	entries, err := f.c.Statement(f.ctx, ledger.EntityVendor, v1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.True(t, entries[2].BalanceAfter.Equal(money("100")))

	_, err = f.c.RecordPayment(f.ctx, coordinator.PaymentInput{EntityType: "vendor", EntityID: v1})
	require.ErrorIs(t, err, shared.ErrInvalid)
	_, err = f.c.RecordPayment(f.ctx, coordinator.PaymentInput{EntityType: "supplier", EntityID: v1, Cash: money("1")})
	require.ErrorIs(t, err, shared.ErrInvalid)
	f.requireIntegrity(t)
}

func TestDailyCashbookSumsEvents(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	product := f.store.AddProduct(tenant, "Lager", money("1"))
	day := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	_, err := f.c.RecordPurchase(f.ctx, coordinator.PurchaseInput{
		VendorID: v1, PurchaseDate: day, PaidCash: money("30"),
		Items: []coordinator.PurchaseItemInput{{ProductID: product, Quantity: 10, Amount: money("30")}},
	})
	require.NoError(t, err)
	_, err = f.c.RecordSale(f.ctx, coordinator.SaleInput{
		SaleDate: day.Add(3 * time.Hour), PaidCash: money("40"), PaidOnline: money("5"),
		Items: []coordinator.SaleItemInput{{ProductID: product, Quantity: 9, Amount: money("45")}},
	})
	require.NoError(t, err)

	totals, err := f.c.DailyCashbook(f.ctx, day)
	require.NoError(t, err)
	require.Equal(t, 2, totals.Entries)
	require.True(t, totals.NetCash().Equal(money("10")))
	require.True(t, totals.NetOnline().Equal(money("5")))

	other, err := f.c.DailyCashbook(f.ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Zero(t, other.Entries)
}

func TestCloseStockReconcilesDay(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	product := f.store.AddProduct(tenant, "Lager", money("2"))
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	f.purchase(t, v1, product, 100, "0", day.Add(-12*time.Hour))
	require.NoError(t, f.c.RecordMorningStock(f.ctx, coordinator.MorningStockInput{ProductID: product, Quantity: 100, Date: day}))
	f.purchase(t, v1, product, 20, "0", day.Add(10*time.Hour))
	sale, err := f.c.RecordSale(f.ctx, coordinator.SaleInput{
		SaleDate: day.Add(12 * time.Hour),
		Items:    []coordinator.SaleItemInput{{ProductID: product, Quantity: 30, Amount: money("60")}},
	})
	require.NoError(t, err)

	closed, err := f.c.CloseStock(f.ctx, coordinator.CloseStockInput{
		ClosingDate:   day.Add(20 * time.Hour),
		Counts:        []coordinator.CountInput{{ProductID: product, Physical: 85}},
		CashCollected: money("60"),
	})
	require.NoError(t, err)
	require.Equal(t, day, closed.ClosingDate)
	require.Len(t, closed.Items, 1)
	item := closed.Items[0]
	require.Equal(t, int64(100), item.MorningStock)
	require.Equal(t, int64(20), item.Purchases)
	require.Equal(t, int64(30), item.Sales)
	require.Equal(t, int64(90), item.SystemStock)
	require.Equal(t, int64(85), item.PhysicalStock)
	require.Equal(t, int64(-5), item.Discrepancy)
	require.NotZero(t, closed.SaleID)

	p, _ := f.store.Product(tenant, product)
	require.Equal(t, int64(85), p.CurrentStock)
	require.Equal(t, int64(85), p.MorningStock)
	require.Equal(t, day.AddDate(0, 0, 1), p.MorningStockLastUpdatedDate)
	require.Equal(t, int64(85), f.store.VendorStock(tenant, v1, product))

	_, err = f.c.ReturnSale(f.ctx, sale.ID)
	require.ErrorIs(t, err, shared.ErrTemporalConstraint)

	_, err = f.c.CloseStock(f.ctx, coordinator.CloseStockInput{ClosingDate: day})
	require.ErrorIs(t, err, shared.ErrInvariantViolation)

	totals, err := f.c.DailyCashbook(f.ctx, day)
	require.NoError(t, err)
	require.True(t, totals.CashIn.Equal(money("60")))
	f.requireIntegrity(t)
}

func TestCloseStockRejectsSurplus(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	product := f.store.AddProduct(tenant, "Lager", money("2"))
	f.purchase(t, v1, product, 10, "0", time.Time{})

	_, err := f.c.CloseStock(f.ctx, coordinator.CloseStockInput{
		ClosingDate: time.Now(),
		Counts:      []coordinator.CountInput{{ProductID: product, Physical: 11}},
	})
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
	require.Equal(t, int64(10), f.stockOf(t, product))
}

func TestVendorLifecycleThroughCoordinator(t *testing.T) {
	f := newFixture(t)
	a := f.vendor(t, "A")
	f.vendor(t, "B")
	f.vendor(t, "C")
	d, err := f.c.CreateVendor(f.ctx, coordinator.CreateVendorInput{Name: "D", Priority: 2})
	require.NoError(t, err)

	list, err := f.c.ListVendors(f.ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, v := range list {
		names = append(names, fmt.Sprintf("%s%d", v.Name, v.Priority))
	}
	require.Equal(t, []string{"A1", "D2", "B3", "C4"}, names)

	_, err = f.c.ChangeVendorPriority(f.ctx, coordinator.ChangeVendorPriorityInput{VendorID: a, Priority: 4})
	require.NoError(t, err)
	_, err = f.c.DeleteVendor(f.ctx, d.ID)
	require.NoError(t, err)

	list, err = f.c.ListVendors(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, a, list[2].ID)
	require.Equal(t, 3, list[2].Priority)

	product := f.store.AddProduct(tenant, "Lager", money("1"))
	_, err = f.c.RecordPurchase(f.ctx, coordinator.PurchaseInput{
		VendorID: d.ID, Items: []coordinator.PurchaseItemInput{{ProductID: product, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	f.requireIntegrity(t)
}

func TestPrincipalAndPayloadAreRequired(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.CreateVendor(context.Background(), coordinator.CreateVendorInput{Name: "A"})
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = f.c.CreateVendor(f.ctx, coordinator.CreateVendorInput{})
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = f.c.RecordPurchase(f.ctx, coordinator.PurchaseInput{VendorID: 1})
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = f.c.RecordSale(f.ctx, coordinator.SaleInput{Items: []coordinator.SaleItemInput{{ProductID: 1, Quantity: 1, Amount: money("-1")}}})
	require.ErrorIs(t, err, shared.ErrInvalid)
}

func TestTenantsAreIsolated(t *testing.T) {
	f := newFixture(t)
	v1 := f.vendor(t, "V1")
	product := f.store.AddProduct(tenant, "Lager", money("1"))
	p := f.purchase(t, v1, product, 5, "0", time.Time{})

	other := principalCtx(2)
	_, err := f.c.ReturnPurchase(other, p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.c.RecordPurchase(other, coordinator.PurchaseInput{
		VendorID: v1, Items: []coordinator.PurchaseItemInput{{ProductID: product, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, int64(5), f.stockOf(t, product))
}

func TestAuditIsRecordedAfterCommitOnly(t *testing.T) {
	f := newFixture(t)
	f.vendor(t, "V1")
	_, err := f.c.ReturnPurchase(f.ctx, 12345)
	require.Error(t, err)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 1)
	require.Equal(t, "vendor:create", logs[0].Action)
	require.Equal(t, tenant, logs[0].TenantID)
	require.Equal(t, int64(7), logs[0].ActorID)
}

type failingAudit struct{ calls int }

func (a *failingAudit) Record(context.Context, shared.AuditLog) error {
	a.calls++
	return errors.New("audit sink down")
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	audit := &failingAudit{}
	f := newFixture(t, coordinator.WithAudit(audit))
	_, err := f.c.CreateVendor(f.ctx, coordinator.CreateVendorInput{Name: "V1"})
	require.NoError(t, err)
	require.Equal(t, 1, audit.calls)
}
