package adjudicator

import (
	"errors"
	"fmt"

	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/decision"
	"github.com/xraph/adjudicator/lifecycle"
	"github.com/xraph/adjudicator/member"
)

// Sentinel errors for engine-level failures.
var (
	ErrInvalidInput        = errors.New("adjudicator: invalid input")
	ErrIdempotencyMismatch = errors.New("adjudicator: idempotency key reused with different input")
	ErrCurrencyMismatch    = errors.New("adjudicator: billed currency does not match catalog")
	ErrMemberInactive      = errors.New("adjudicator: member is not active")
)

// Re-exported component errors so callers need only this package.
var (
	// Catalog
	ErrUnknownServiceType = catalog.ErrUnknownServiceType
	ErrUnknownCategory    = catalog.ErrUnknownCategory
	ErrOutsideCoverage    = catalog.ErrOutsideCoverage
	ErrNoCatalog          = catalog.ErrNoSnapshot

	// Benefit ledger
	ErrInsufficientBenefit  = benefit.ErrInsufficientBenefit
	ErrReversalExceedsUsage = benefit.ErrReversalExceedsUsage
	ErrInvariantViolation   = benefit.ErrInvariantViolation
	ErrContention           = benefit.ErrContention

	// Decision
	ErrAdvisorUnavailable = decision.ErrAdvisorUnavailable
	ErrReasonRequired     = decision.ErrReasonRequired

	// Lifecycle guards
	ErrAlreadyAdjudicated       = lifecycle.ErrAlreadyAdjudicated
	ErrVerificationRequired     = lifecycle.ErrVerificationRequired
	ErrAlreadyVoided            = lifecycle.ErrAlreadyVoided
	ErrClaimNotApproved         = lifecycle.ErrClaimNotApproved
	ErrClaimNotDenied           = lifecycle.ErrClaimNotDenied
	ErrVoidInProgress           = lifecycle.ErrVoidInProgress
	ErrAppealExhausted          = lifecycle.ErrAppealExhausted
	ErrManualResolutionRequired = lifecycle.ErrManualResolutionRequired
	ErrNotAwaitingResolution    = lifecycle.ErrNotAwaitingResolution
	ErrInvalidTransition        = lifecycle.ErrInvalidTransition
	ErrConcurrentModification   = lifecycle.ErrConcurrentModification

	// Lookups
	ErrClaimNotFound  = claim.ErrNotFound
	ErrMemberNotFound = member.ErrNotFound
)

// TransitionError explains a refused lifecycle transition.
type TransitionError = lifecycle.TransitionError

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("adjudicator: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes every ValidationError match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrUnknownServiceType) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, catalog.ErrVersionNotFound)
}

// IsGuardViolation returns true if the error is a refused state transition
// or other caller misuse. These are never retried automatically.
func IsGuardViolation(err error) bool {
	return errors.Is(err, ErrAlreadyAdjudicated) ||
		errors.Is(err, ErrVerificationRequired) ||
		errors.Is(err, ErrAlreadyVoided) ||
		errors.Is(err, ErrClaimNotApproved) ||
		errors.Is(err, ErrClaimNotDenied) ||
		errors.Is(err, ErrVoidInProgress) ||
		errors.Is(err, ErrAppealExhausted) ||
		errors.Is(err, ErrManualResolutionRequired) ||
		errors.Is(err, ErrNotAwaitingResolution) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrReversalExceedsUsage) ||
		errors.Is(err, ErrIdempotencyMismatch)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAdvisorUnavailable) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrContention)
}

// IsInvariantViolation returns true if the error signals a bookkeeping
// defect that should page someone.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
