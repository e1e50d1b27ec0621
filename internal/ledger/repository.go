package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the ledger statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func holderTable(t EntityType) (string, error) {
	switch t {
	case EntityCustomer:
		return "customers", nil
	case EntityVendor:
		return "vendors", nil
	default:
		return "", shared.E(shared.KindInvalid, "ledger", "unknown entity type %q", t)
	}
}

func (r *txRepo) GetHolderBalanceForUpdate(ctx context.Context, tenantID int64, entityType EntityType, entityID int64) (decimal.Decimal, error) {
	table, err := holderTable(entityType)
	if err != nil {
		return decimal.Zero, err
	}
	var balance decimal.Decimal
	err = r.tx.QueryRow(ctx, `SELECT outstanding_balance FROM `+table+` WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, entityID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, shared.E(shared.KindNotFound, "ledger: get holder", "%s %d not found", entityType, entityID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: get holder: %w", err)
	}
	return balance, nil
}

func (r *txRepo) SetHolderBalance(ctx context.Context, tenantID int64, entityType EntityType, entityID int64, balance decimal.Decimal) error {
	table, err := holderTable(entityType)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE `+table+` SET outstanding_balance=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, entityID, balance)
	if err != nil {
		return fmt.Errorf("ledger: set holder balance: %w", err)
	}
	return nil
}

func (r *txRepo) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_entries (tenant_id, entity_type, entity_id, debit, credit, balance_after, reference_type, reference_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		e.TenantID, string(e.EntityType), e.EntityID, e.Debit, e.Credit, e.BalanceAfter, e.ReferenceType, e.ReferenceID, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: insert entry: %w", err)
	}
	return e, nil
}

const entryColumns = `id, tenant_id, entity_type, entity_id, debit, credit, balance_after, reference_type, reference_id, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var entityType string
	if err := row.Scan(&e.ID, &e.TenantID, &entityType, &e.EntityID, &e.Debit, &e.Credit, &e.BalanceAfter, &e.ReferenceType, &e.ReferenceID, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.EntityType = EntityType(entityType)
	return e, nil
}

func (r *txRepo) EntryByReference(ctx context.Context, tenantID int64, ref Reference) (Entry, error) {
	e, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE tenant_id=$1 AND reference_type=$2 AND reference_id=$3 ORDER BY id DESC LIMIT 1`, tenantID, ref.Type, ref.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, shared.E(shared.KindNotFound, "ledger: entry by reference", "no entry for %s %d", ref.Type, ref.ID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: entry by reference: %w", err)
	}
	return e, nil
}

func (r *txRepo) InsertCashbookEntry(ctx context.Context, c CashbookEntry) (CashbookEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO cashbook_entries (tenant_id, entry_date, source_type, reference_id, cash_in, cash_out, online_in, online_out, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		c.TenantID, c.Date, c.SourceType, c.ReferenceID, c.CashIn, c.CashOut, c.OnlineIn, c.OnlineOut, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return CashbookEntry{}, fmt.Errorf("ledger: insert cashbook entry: %w", err)
	}
	return c, nil
}

func (r *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO payments (tenant_id, entity_type, entity_id, cash, online, paid_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.TenantID, string(p.EntityType), p.EntityID, p.Cash, p.Online, p.PaidAt, p.CreatedBy, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return Payment{}, fmt.Errorf("ledger: insert payment: %w", err)
	}
	return p, nil
}

func (r *txRepo) GetPaymentForUpdate(ctx context.Context, tenantID, paymentID int64) (Payment, error) {
	p := Payment{TenantID: tenantID, ID: paymentID}
	var entityType string
	var cancelledBy *int64
	var cancelledAt *time.Time
	err := r.tx.QueryRow(ctx, `SELECT entity_type, entity_id, cash, online, paid_at, is_cancelled, cancelled_by, cancelled_at, created_by, created_at
FROM payments WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, paymentID).Scan(
		&entityType, &p.EntityID, &p.Cash, &p.Online, &p.PaidAt, &p.IsCancelled, &cancelledBy, &cancelledAt, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.E(shared.KindNotFound, "ledger: get payment", "payment %d not found", paymentID)
	}
	if err != nil {
		return Payment{}, fmt.Errorf("ledger: get payment: %w", err)
	}
	p.EntityType = EntityType(entityType)
	if cancelledBy != nil {
		p.CancelledBy = *cancelledBy
	}
	if cancelledAt != nil {
		p.CancelledAt = *cancelledAt
	}
	return p, nil
}

func (r *txRepo) MarkPaymentCancelled(ctx context.Context, tenantID, paymentID, actorID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE payments SET is_cancelled=TRUE, cancelled_by=$3, cancelled_at=$4
WHERE tenant_id=$1 AND id=$2 AND is_cancelled=FALSE`, tenantID, paymentID, actorID, at)
	if err != nil {
		return fmt.Errorf("ledger: cancel payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindAlreadyReturned, "ledger: cancel payment", "payment %d already cancelled", paymentID)
	}
	return nil
}

func (r *txRepo) ListEntries(ctx context.Context, tenantID int64, entityType EntityType, entityID int64) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE tenant_id=$1 AND entity_type=$2 AND entity_id=$3 ORDER BY id`, tenantID, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *txRepo) ListHolders(ctx context.Context, tenantID int64) ([]Holder, error) {
	rows, err := r.tx.Query(ctx, `SELECT 'customer', id, outstanding_balance FROM customers WHERE tenant_id=$1
UNION ALL
SELECT 'vendor', id, outstanding_balance FROM vendors WHERE tenant_id=$1
ORDER BY 1, 2`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list holders: %w", err)
	}
	defer rows.Close()
	var out []Holder
	for rows.Next() {
		h := Holder{TenantID: tenantID}
		var entityType string
		if err := rows.Scan(&entityType, &h.EntityID, &h.Balance); err != nil {
			return nil, err
		}
		h.EntityType = EntityType(entityType)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *txRepo) ListCashbook(ctx context.Context, tenantID int64, from, to time.Time) ([]CashbookEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, entry_date, source_type, reference_id, cash_in, cash_out, online_in, online_out, created_at
FROM cashbook_entries WHERE tenant_id=$1 AND entry_date >= $2 AND entry_date < $3 ORDER BY id`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledger: list cashbook: %w", err)
	}
	defer rows.Close()
	var out []CashbookEntry
	for rows.Next() {
		c := CashbookEntry{TenantID: tenantID}
		if err := rows.Scan(&c.ID, &c.Date, &c.SourceType, &c.ReferenceID, &c.CashIn, &c.CashOut, &c.OnlineIn, &c.OnlineOut, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
