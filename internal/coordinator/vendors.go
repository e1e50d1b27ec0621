package coordinator

import (
	"context"

	"github.com/odyssey-erp/stockbook/internal/vendors"
)

// CreateVendor inserts a vendor at the requested rank.
func (c *Coordinator) CreateVendor(ctx context.Context, in CreateVendorInput) (vendors.Vendor, error) {
	p, err := c.begin(ctx, opCreateVendor, &in)
	if err != nil {
		return vendors.Vendor{}, err
	}
	var created vendors.Vendor
	err = c.execute(ctx, opCreateVendor, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		created, err = c.ranks.Create(ctx, uow.Vendors(), vendors.CreateInput{TenantID: p.TenantID, Name: in.Name, Priority: in.Priority})
		return err
	})
	if err != nil {
		return vendors.Vendor{}, err
	}
	c.committed(ctx, p, "vendor:create", "vendor", created.ID, map[string]any{"priority": created.Priority, "name": created.Name})
	return created, nil
}

// ChangeVendorPriority moves a vendor to a new rank.
func (c *Coordinator) ChangeVendorPriority(ctx context.Context, in ChangeVendorPriorityInput) (vendors.Vendor, error) {
	p, err := c.begin(ctx, opChangeVendorPriority, &in)
	if err != nil {
		return vendors.Vendor{}, err
	}
	var moved vendors.Vendor
	err = c.execute(ctx, opChangeVendorPriority, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		moved, err = c.ranks.SetVendorPriority(ctx, uow.Vendors(), p.TenantID, in.VendorID, in.Priority)
		return err
	})
	if err != nil {
		return vendors.Vendor{}, err
	}
	c.committed(ctx, p, "vendor:priority", "vendor", moved.ID, map[string]any{"priority": moved.Priority, "requested": in.Priority})
	return moved, nil
}

// DeleteVendor soft-deletes a vendor and closes its rank.
func (c *Coordinator) DeleteVendor(ctx context.Context, vendorID int64) (vendors.Vendor, error) {
	p, err := c.begin(ctx, opDeleteVendor, nil)
	if err != nil {
		return vendors.Vendor{}, err
	}
	var deleted vendors.Vendor
	err = c.execute(ctx, opDeleteVendor, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		deleted, err = c.ranks.SoftDelete(ctx, uow.Vendors(), p.TenantID, vendorID)
		return err
	})
	if err != nil {
		return vendors.Vendor{}, err
	}
	c.committed(ctx, p, "vendor:delete", "vendor", deleted.ID, map[string]any{"priority": deleted.Priority})
	return deleted, nil
}

// ListVendors returns the tenant's active vendors by rank.
func (c *Coordinator) ListVendors(ctx context.Context) ([]vendors.Vendor, error) {
	p, err := c.begin(ctx, opListVendors, nil)
	if err != nil {
		return nil, err
	}
	var out []vendors.Vendor
	err = c.execute(ctx, opListVendors, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		out, err = uow.Vendors().ListActive(ctx, p.TenantID)
		return err
	})
	return out, err
}
