/*
errors.go - Centralized error taxonomy for the loan engine

ERROR CATEGORIES:
  1. Validation errors - malformed or out-of-range input, rejected before
     any mutation
  2. Conflict errors   - input that collides with existing state (duplicate
     external id, overlapping pause window, blocked overpayment)
  3. State errors      - operation invalid for the current loan status
  4. Replay inconsistency - internal invariant broken after replay; fatal
     for the aggregate and never silently corrected

Collaborators should branch with errors.Is / errors.As, never on message
text. The structured types carry the context a caller needs to build a
useful response.
*/
package loan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is the root of all state-collision failures.
	ErrConflict = errors.New("conflict")

	// ErrState is the root of all invalid-for-current-status failures.
	ErrState = errors.New("operation not valid for loan state")

	// ErrReplayInconsistency indicates the ledger and schedule no longer
	// reconcile after a replay. This is a bug, not bad input; the aggregate
	// must not be saved.
	ErrReplayInconsistency = errors.New("replay inconsistency")

	// ErrDuplicateExternalID is returned when a transaction external id is
	// reused within one loan. Distinct from generic validation so clients
	// can treat it as an idempotent-retry signal.
	ErrDuplicateExternalID = errors.New("duplicate external transaction id")

	// ErrOverlappingPause is returned when a delinquency PAUSE window
	// overlaps an active one.
	ErrOverlappingPause = errors.New("overlapping delinquency pause")

	// ErrLoanNotFound is returned by stores for unknown loan ids.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrTransactionNotFound is returned for unknown transaction ids.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrChargeNotFound is returned for unknown charge ids.
	ErrChargeNotFound = errors.New("charge not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input. Nothing is mutated when one is
// returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a collision with existing state, rejected
// atomically.
type ConflictError struct {
	Reason string
	Cause  error // optional finer-grained sentinel (e.g. ErrDuplicateExternalID)
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

func (e *ConflictError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrConflict
}

// Is lets both the specific cause and the generic ErrConflict match.
func (e *ConflictError) Is(target error) bool {
	if target == ErrConflict {
		return true
	}
	return e.Cause != nil && errors.Is(e.Cause, target)
}

// StateError reports an operation invalid for the loan's current status.
type StateError struct {
	LoanID    LoanID
	Status    LoanStatus
	Operation string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state: cannot %s loan %s in status %s", e.Operation, e.LoanID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrState }

// ReplayError reports a post-replay invariant violation. Surfaced loudly,
// never corrected in place.
type ReplayError struct {
	LoanID LoanID
	Detail string
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay inconsistency on loan %s: %s", e.LoanID, e.Detail)
}

func (e *ReplayError) Unwrap() error { return ErrReplayInconsistency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsState(err error) bool      { return errors.Is(err, ErrState) }

// IsFatal reports whether the error must abort the aggregate rather than be
// returned to the client as a 4xx.
func IsFatal(err error) bool { return errors.Is(err, ErrReplayInconsistency) }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrChargeNotFound)
}
