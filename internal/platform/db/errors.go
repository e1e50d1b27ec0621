package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

// Postgres SQLSTATE codes the engine reacts to.
const (
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// Named CHECK constraints that guard stock quantities.
var stockConstraints = map[string]bool{
	"products_stock_non_negative": true,
	"vendor_stocks_non_negative":  true,
}

// Classify maps driver errors onto the engine error kinds. Errors that
// already carry a kind, and unknown errors, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if shared.KindOf(err) != "" {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return shared.Wrap(shared.KindTransientConflict, "platform/db", err)
	case codeUniqueViolation, codeExclusionViolation:
		return shared.Wrap(shared.KindInvariantViolation, "platform/db: "+pgErr.ConstraintName, err)
	case codeCheckViolation:
		if stockConstraints[pgErr.ConstraintName] {
			return shared.Wrap(shared.KindInsufficientStock, "platform/db: "+pgErr.ConstraintName, err)
		}
		return shared.Wrap(shared.KindInvariantViolation, "platform/db: "+pgErr.ConstraintName, err)
	}
	return err
}
