package memory

import (
	"context"
	"sort"

	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/vendors"
)

type vendorRepo struct {
	st *state
}

// LockTenant is a no-op: transactions already run one at a time.
func (r vendorRepo) LockTenant(context.Context, int64) error { return nil }

func (r vendorRepo) CountActive(ctx context.Context, tenantID int64) (int, error) {
	list, err := r.ListActive(ctx, tenantID)
	return len(list), err
}

func (r vendorRepo) ListActive(_ context.Context, tenantID int64) ([]vendors.Vendor, error) {
	var out []vendors.Vendor
	for _, v := range r.st.vendors {
		if v.TenantID == tenantID && v.Active() {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r vendorRepo) GetForUpdate(_ context.Context, tenantID, vendorID int64) (vendors.Vendor, error) {
	v, ok := r.st.vendors[vendorID]
	if !ok || v.TenantID != tenantID {
		return vendors.Vendor{}, shared.E(shared.KindNotFound, "memory: get vendor", "vendor %d not found", vendorID)
	}
	return v, nil
}

func (r vendorRepo) ShiftPriorities(_ context.Context, tenantID int64, from, delta int, excludeID int64) error {
	for id, v := range r.st.vendors {
		if v.TenantID == tenantID && v.Active() && v.Priority >= from && id != excludeID {
			v.Priority += delta
			r.st.vendors[id] = v
		}
	}
	return nil
}

func (r vendorRepo) Insert(_ context.Context, v vendors.Vendor) (vendors.Vendor, error) {
	v.ID = r.st.nextID()
	r.st.vendors[v.ID] = v
	return v, nil
}

func (r vendorRepo) SetPriority(ctx context.Context, tenantID, vendorID int64, priority int) error {
	v, err := r.GetForUpdate(ctx, tenantID, vendorID)
	if err != nil {
		return err
	}
	v.Priority = priority
	r.st.vendors[vendorID] = v
	return nil
}

func (r vendorRepo) SetStatus(ctx context.Context, tenantID, vendorID int64, status vendors.Status) error {
	v, err := r.GetForUpdate(ctx, tenantID, vendorID)
	if err != nil {
		return err
	}
	v.Status = status
	r.st.vendors[vendorID] = v
	return nil
}
