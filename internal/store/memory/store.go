// Package memory is an in-process store implementing the engine's unit of
// work. Transactions run one at a time against a private copy of the state
// that replaces the committed state only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/closing"
	"github.com/odyssey-erp/stockbook/internal/coordinator"
	"github.com/odyssey-erp/stockbook/internal/ledger"
	"github.com/odyssey-erp/stockbook/internal/reports"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/stock"
	"github.com/odyssey-erp/stockbook/internal/vendors"
)

// Store keeps every tenant's data in memory.
type Store struct {
	mu    sync.Mutex
	state *state

	auditMu sync.Mutex
	audit   []shared.AuditLog

	idemMu sync.Mutex
	idem   map[string]time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: newState(), idem: make(map[string]time.Time)}
}

// WithTx runs fn against a copy of the state and commits it by swap.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, coordinator.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &unit{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// ListTenantIDs returns every tenant that owns data.
func (s *Store) ListTenantIDs(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]bool)
	for _, v := range s.state.vendors {
		seen[v.TenantID] = true
	}
	for _, p := range s.state.products {
		seen[p.TenantID] = true
	}
	for _, c := range s.state.customers {
		seen[c.TenantID] = true
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Record appends an audit record.
func (s *Store) Record(_ context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.audit = append(s.audit, log)
	return nil
}

// AuditLogs returns a copy of the recorded audit trail.
func (s *Store) AuditLogs() []shared.AuditLog {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	return append([]shared.AuditLog(nil), s.audit...)
}

// CheckAndInsert claims an idempotency key.
func (s *Store) CheckAndInsert(_ context.Context, key, module string) error {
	if key == "" || module == "" {
		return shared.E(shared.KindInvalid, "memory: idempotency", "key and module required")
	}
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	if _, ok := s.idem[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.idem[key] = time.Now()
	return nil
}

// Delete releases an idempotency key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	delete(s.idem, key)
	return nil
}

// Cleanup drops keys claimed more than olderThan ago.
func (s *Store) Cleanup(_ context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	for key, at := range s.idem {
		if at.Before(cutoff) {
			delete(s.idem, key)
		}
	}
	return nil
}

// Reports returns a report source reading committed data.
func (s *Store) Reports() reports.Source {
	return committedSource{s: s}
}

// AddCustomer seeds a customer account. Customer maintenance lives outside
// the engine.
func (s *Store) AddCustomer(tenantID int64, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state.clone()
	id := st.nextID()
	st.customers[id] = customer{TenantID: tenantID, ID: id, Name: name, Status: "active"}
	s.state = st
	return id
}

// AddProduct seeds an empty product.
func (s *Store) AddProduct(tenantID int64, name string, price decimal.Decimal) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state.clone()
	id := st.nextID()
	st.products[id] = stock.Product{TenantID: tenantID, ID: id, Name: name, PricePerUnit: price, Status: stock.ProductActive}
	s.state = st
	return id
}

// Product returns the committed product.
func (s *Store) Product(tenantID, productID int64) (stock.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[productID]
	return p, ok && p.TenantID == tenantID
}

// VendorStock returns the committed share of a vendor.
func (s *Store) VendorStock(tenantID, vendorID, productID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.vendorStocks[vsKey{tenantID, vendorID, productID}].CurrentStock
}

// Balance returns the committed cached balance of a holder.
func (s *Store) Balance(tenantID int64, entityType ledger.EntityType, entityID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, _ := s.state.holderBalance(tenantID, entityType, entityID)
	return bal
}

type customer struct {
	TenantID int64
	ID       int64
	Name     string
	Status   string
	Balance  decimal.Decimal
}

type vsKey struct {
	tenantID, vendorID, productID int64
}

type state struct {
	seq          int64
	vendors      map[int64]vendors.Vendor
	customers    map[int64]customer
	products     map[int64]stock.Product
	vendorStocks map[vsKey]stock.VendorStock
	purchases    map[int64]stock.Purchase
	sales        map[int64]stock.Sale
	payments     map[int64]ledger.Payment
	entries      []ledger.Entry
	cashbook     []ledger.CashbookEntry
	closings     []closing.StockClosing
}

func newState() *state {
	return &state{
		vendors:      make(map[int64]vendors.Vendor),
		customers:    make(map[int64]customer),
		products:     make(map[int64]stock.Product),
		vendorStocks: make(map[vsKey]stock.VendorStock),
		purchases:    make(map[int64]stock.Purchase),
		sales:        make(map[int64]stock.Sale),
		payments:     make(map[int64]ledger.Payment),
	}
}

// clone copies the maps. Documents are treated as immutable values once
// stored, and append-only slices are capped so appends never alias.
func (s *state) clone() *state {
	c := &state{
		seq:          s.seq,
		vendors:      cloneMap(s.vendors),
		customers:    cloneMap(s.customers),
		products:     cloneMap(s.products),
		vendorStocks: cloneMap(s.vendorStocks),
		purchases:    cloneMap(s.purchases),
		sales:        cloneMap(s.sales),
		payments:     cloneMap(s.payments),
		entries:      s.entries[:len(s.entries):len(s.entries)],
		cashbook:     s.cashbook[:len(s.cashbook):len(s.cashbook)],
		closings:     s.closings[:len(s.closings):len(s.closings)],
	}
	return c
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *state) holderBalance(tenantID int64, entityType ledger.EntityType, entityID int64) (decimal.Decimal, bool) {
	switch entityType {
	case ledger.EntityCustomer:
		c, ok := s.customers[entityID]
		if !ok || c.TenantID != tenantID {
			return decimal.Zero, false
		}
		return c.Balance, true
	case ledger.EntityVendor:
		v, ok := s.vendors[entityID]
		if !ok || v.TenantID != tenantID {
			return decimal.Zero, false
		}
		return v.OutstandingBalance, true
	}
	return decimal.Zero, false
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type unit struct {
	st *state
}

func (u *unit) Vendors() vendors.TxRepository  { return vendorRepo{u.st} }
func (u *unit) Stock() stock.TxRepository      { return stockRepo{u.st} }
func (u *unit) Ledger() ledger.TxRepository    { return ledgerRepo{u.st} }
func (u *unit) Closings() closing.TxRepository { return closingRepo{u.st} }
func (u *unit) Movements() reports.Source      { return movementRepo{u.st} }

var _ coordinator.TxRunner = (*Store)(nil)
