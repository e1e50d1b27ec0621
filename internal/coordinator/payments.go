package coordinator

import (
	"context"
	"time"

	"github.com/odyssey-erp/stockbook/internal/ledger"
)

// RecordPayment settles part of a customer's or vendor's balance.
func (c *Coordinator) RecordPayment(ctx context.Context, in PaymentInput) (ledger.Payment, error) {
	p, err := c.begin(ctx, opRecordPayment, &in)
	if err != nil {
		return ledger.Payment{}, err
	}
	if err := nonNegative(opRecordPayment, in.Cash, in.Online); err != nil {
		return ledger.Payment{}, err
	}
	var payment ledger.Payment
	err = c.execute(ctx, opRecordPayment, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		payment, _, err = c.book.RecordPayment(ctx, uow.Ledger(), ledger.Payment{
			TenantID:   p.TenantID,
			EntityType: ledger.EntityType(in.EntityType),
			EntityID:   in.EntityID,
			Cash:       in.Cash,
			Online:     in.Online,
			PaidAt:     in.PaidAt,
			CreatedBy:  p.UserID,
		})
		return err
	})
	if err != nil {
		return ledger.Payment{}, err
	}
	c.committed(ctx, p, "payment:create", "payment", payment.ID, map[string]any{
		"entity_type": in.EntityType, "entity_id": in.EntityID, "amount": payment.Amount().String(),
	})
	return payment, nil
}

// CancelPayment reverses a payment. A cancelled payment cannot be cancelled
// again.
func (c *Coordinator) CancelPayment(ctx context.Context, paymentID int64) (ledger.Payment, error) {
	p, err := c.begin(ctx, opCancelPayment, nil)
	if err != nil {
		return ledger.Payment{}, err
	}
	var payment ledger.Payment
	err = c.execute(ctx, opCancelPayment, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		payment, _, err = c.book.CancelPayment(ctx, uow.Ledger(), p.TenantID, paymentID, p.UserID)
		return err
	})
	if err != nil {
		return ledger.Payment{}, err
	}
	c.committed(ctx, p, "payment:cancel", "payment", paymentID, map[string]any{
		"entity_type": string(payment.EntityType), "entity_id": payment.EntityID,
	})
	return payment, nil
}

// Statement returns a holder's ledger entries in creation order.
func (c *Coordinator) Statement(ctx context.Context, entityType ledger.EntityType, entityID int64) ([]ledger.Entry, error) {
	p, err := c.begin(ctx, opStatement, nil)
	if err != nil {
		return nil, err
	}
	var entries []ledger.Entry
	err = c.execute(ctx, opStatement, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		entries, err = c.book.Statement(ctx, uow.Ledger(), p.TenantID, entityType, entityID)
		return err
	})
	return entries, err
}

// DailyCashbook sums the tenant's cashbook for a day.
func (c *Coordinator) DailyCashbook(ctx context.Context, date time.Time) (ledger.DailyTotals, error) {
	p, err := c.begin(ctx, opDailyCashbook, nil)
	if err != nil {
		return ledger.DailyTotals{}, err
	}
	var totals ledger.DailyTotals
	err = c.execute(ctx, opDailyCashbook, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		totals, err = c.book.DailyCashbook(ctx, uow.Ledger(), p.TenantID, date)
		return err
	})
	return totals, err
}
