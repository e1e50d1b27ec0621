package shared

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the consistency engine.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindAlreadyReturned    Kind = "already_returned"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindInvariantViolation Kind = "invariant_violation"
	KindTemporalConstraint Kind = "temporal_constraint"
	KindTransientConflict  Kind = "transient_conflict"
	KindInvalid            Kind = "invalid"
)

var (
	// ErrNotFound indicates the referenced record is absent or soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyReturned indicates a terminal-state violation.
	ErrAlreadyReturned = errors.New("already returned")
	// ErrInsufficientStock indicates a quantity would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvariantViolation indicates a rank collision or an unreconcilable stock sum.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrTemporalConstraint indicates a return that predates a stock snapshot.
	ErrTemporalConstraint = errors.New("temporal constraint")
	// ErrTransientConflict indicates a retryable write conflict.
	ErrTransientConflict = errors.New("transient conflict")
	// ErrInvalid indicates a malformed payload.
	ErrInvalid = errors.New("invalid input")
)

var sentinels = map[Kind]error{
	KindNotFound:           ErrNotFound,
	KindAlreadyReturned:    ErrAlreadyReturned,
	KindInsufficientStock:  ErrInsufficientStock,
	KindInvariantViolation: ErrInvariantViolation,
	KindTemporalConstraint: ErrTemporalConstraint,
	KindTransientConflict:  ErrTransientConflict,
	KindInvalid:            ErrInvalid,
}

// Error carries the failure kind plus a human readable reason.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" {
		if sentinel, ok := sentinels[e.Kind]; ok {
			msg = sentinel.Error()
		} else {
			msg = string(e.Kind)
		}
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && target == sentinel
}

// E builds a typed error with a formatted reason.
func E(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or an empty Kind for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// IsRetryable reports whether the operation may succeed when attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientConflict)
}
