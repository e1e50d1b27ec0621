package vendors

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

// Status enumerates vendor lifecycle states.
type Status string

const (
	// StatusActive vendors hold a rank in 1..N.
	StatusActive Status = "active"
	// StatusDeleted vendors keep their stale priority and no longer rank.
	StatusDeleted Status = "deleted"
)

// Vendor is a supplier ranked per tenant.
type Vendor struct {
	TenantID           int64
	ID                 int64
	Name               string
	Priority           int
	Status             Status
	OutstandingBalance decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Active reports whether the vendor participates in ranking.
func (v Vendor) Active() bool {
	return v.Status == StatusActive
}

// CreateInput describes a vendor to insert. A zero Priority appends at the end.
type CreateInput struct {
	TenantID int64
	Name     string
	Priority int
}

// Outcome tags the result of a rank mutation.
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeConflict           Outcome = "conflict"
	OutcomeInvariantViolation Outcome = "invariant_violation"
)

// OutcomeOf maps an operation error onto the rank outcome tags. Errors that
// are neither conflicts nor invariant failures report an empty outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeApplied
	case errors.Is(err, shared.ErrTransientConflict):
		return OutcomeConflict
	case errors.Is(err, shared.ErrInvariantViolation):
		return OutcomeInvariantViolation
	default:
		return ""
	}
}
