package vendors

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

// TxRepository exposes the transactional vendor operations used by RankStore.
// Implementations must scope every statement by tenant.
type TxRepository interface {
	LockTenant(ctx context.Context, tenantID int64) error
	CountActive(ctx context.Context, tenantID int64) (int, error)
	ListActive(ctx context.Context, tenantID int64) ([]Vendor, error)
	GetForUpdate(ctx context.Context, tenantID, vendorID int64) (Vendor, error)
	ShiftPriorities(ctx context.Context, tenantID int64, from, delta int, excludeID int64) error
	Insert(ctx context.Context, vendor Vendor) (Vendor, error)
	SetPriority(ctx context.Context, tenantID, vendorID int64, priority int) error
	SetStatus(ctx context.Context, tenantID, vendorID int64, status Status) error
}

// RankStore keeps active vendor priorities dense and unique per tenant.
type RankStore struct {
	now func() time.Time
}

// NewRankStore constructs a RankStore.
func NewRankStore() *RankStore {
	return &RankStore{now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a vendor at the requested priority, clamped to 1..N+1.
func (s *RankStore) Create(ctx context.Context, tx TxRepository, in CreateInput) (Vendor, error) {
	const op = "vendors: create"
	name := strings.TrimSpace(in.Name)
	if in.TenantID <= 0 || name == "" {
		return Vendor{}, shared.E(shared.KindInvalid, op, "tenant and name required")
	}
	if err := tx.LockTenant(ctx, in.TenantID); err != nil {
		return Vendor{}, err
	}
	n, err := tx.CountActive(ctx, in.TenantID)
	if err != nil {
		return Vendor{}, err
	}
	p := clamp(in.Priority, n+1)
	if in.Priority == 0 {
		p = n + 1
	}
	if p <= n {
		if err := tx.ShiftPriorities(ctx, in.TenantID, p, 1, 0); err != nil {
			return Vendor{}, err
		}
	}
	now := s.now()
	vendor, err := tx.Insert(ctx, Vendor{
		TenantID:  in.TenantID,
		Name:      name,
		Priority:  p,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Vendor{}, err
	}
	if err := s.Check(ctx, tx, in.TenantID); err != nil {
		return Vendor{}, err
	}
	return vendor, nil
}

// SetVendorPriority moves a vendor to desired, clamped to 1..N. Vendors in
// between shift by one so the ranks stay dense.
func (s *RankStore) SetVendorPriority(ctx context.Context, tx TxRepository, tenantID, vendorID int64, desired int) (Vendor, error) {
	const op = "vendors: set priority"
	if err := tx.LockTenant(ctx, tenantID); err != nil {
		return Vendor{}, err
	}
	vendor, err := tx.GetForUpdate(ctx, tenantID, vendorID)
	if err != nil {
		return Vendor{}, err
	}
	if !vendor.Active() {
		return Vendor{}, shared.E(shared.KindNotFound, op, "vendor %d is deleted", vendorID)
	}
	n, err := tx.CountActive(ctx, tenantID)
	if err != nil {
		return Vendor{}, err
	}
	target := clamp(desired, n)
	old := vendor.Priority
	if target == old {
		return vendor, nil
	}
	if err := tx.ShiftPriorities(ctx, tenantID, old+1, -1, vendor.ID); err != nil {
		return Vendor{}, err
	}
	if err := tx.ShiftPriorities(ctx, tenantID, target, 1, vendor.ID); err != nil {
		return Vendor{}, err
	}
	if err := tx.SetPriority(ctx, tenantID, vendor.ID, target); err != nil {
		return Vendor{}, err
	}
	if err := s.Check(ctx, tx, tenantID); err != nil {
		return Vendor{}, err
	}
	vendor.Priority = target
	vendor.UpdatedAt = s.now()
	return vendor, nil
}

// SoftDelete marks the vendor deleted and closes the gap it leaves.
func (s *RankStore) SoftDelete(ctx context.Context, tx TxRepository, tenantID, vendorID int64) (Vendor, error) {
	const op = "vendors: delete"
	if err := tx.LockTenant(ctx, tenantID); err != nil {
		return Vendor{}, err
	}
	vendor, err := tx.GetForUpdate(ctx, tenantID, vendorID)
	if err != nil {
		return Vendor{}, err
	}
	if !vendor.Active() {
		return Vendor{}, shared.E(shared.KindNotFound, op, "vendor %d is already deleted", vendorID)
	}
	if err := tx.SetStatus(ctx, tenantID, vendor.ID, StatusDeleted); err != nil {
		return Vendor{}, err
	}
	if err := tx.ShiftPriorities(ctx, tenantID, vendor.Priority+1, -1, vendor.ID); err != nil {
		return Vendor{}, err
	}
	if err := s.Check(ctx, tx, tenantID); err != nil {
		return Vendor{}, err
	}
	vendor.Status = StatusDeleted
	vendor.UpdatedAt = s.now()
	return vendor, nil
}

// Check loads the active vendors of a tenant and verifies their ranks.
func (s *RankStore) Check(ctx context.Context, tx TxRepository, tenantID int64) error {
	active, err := tx.ListActive(ctx, tenantID)
	if err != nil {
		return err
	}
	return Verify(active)
}

// Verify reports an invariant violation unless the priorities are exactly 1..N.
func Verify(active []Vendor) error {
	const op = "vendors: verify"
	prios := make([]int, 0, len(active))
	for _, v := range active {
		if !v.Active() {
			continue
		}
		prios = append(prios, v.Priority)
	}
	sort.Ints(prios)
	for i, p := range prios {
		if p != i+1 {
			return shared.E(shared.KindInvariantViolation, op, "priorities not dense: position %d holds %d", i+1, p)
		}
	}
	return nil
}

func clamp(p, upper int) int {
	if upper < 1 {
		upper = 1
	}
	if p < 1 {
		return 1
	}
	if p > upper {
		return upper
	}
	return p
}
