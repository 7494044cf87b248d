package lifecycle

import (
	"errors"
	"fmt"

	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/id"
)

// Guard violations. They describe caller or state misuse and are never
// retried automatically.
var (
	ErrAlreadyAdjudicated       = errors.New("lifecycle: claim already adjudicated")
	ErrVerificationRequired     = errors.New("lifecycle: step-up verification required")
	ErrAlreadyVoided            = errors.New("lifecycle: claim already voided")
	ErrClaimNotApproved         = errors.New("lifecycle: claim not approved")
	ErrClaimNotDenied           = errors.New("lifecycle: claim not denied")
	ErrVoidInProgress           = errors.New("lifecycle: void already in progress")
	ErrAppealExhausted          = errors.New("lifecycle: claim already appealed")
	ErrManualResolutionRequired = errors.New("lifecycle: claim awaits manual resolution")
	ErrNotAwaitingResolution    = errors.New("lifecycle: claim is not awaiting manual resolution")
	ErrInvalidTransition        = errors.New("lifecycle: invalid transition")
)

// ErrConcurrentModification is returned when another writer changed the
// claim first. The caller may reload and retry.
var ErrConcurrentModification = errors.New("lifecycle: claim modified concurrently")

// TransitionError explains why a transition did not happen. It unwraps to
// the guard sentinel so errors.Is works.
type TransitionError struct {
	ClaimID id.ClaimID
	From    claim.Status
	To      claim.Status
	Detail  string
	Err     error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%v: claim %s %s -> %s", e.Err, e.ClaimID, e.From, e.To)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return e.Err }
