// Package lifecycle is the claim state machine. It is the only writer of
// claim status and the only caller of benefit ledger mutations.
package lifecycle

import (
	"slices"

	"github.com/xraph/adjudicator/claim"
)

// edges lists every permitted status change. Nothing leads back to pending
// and voided has no way out.
var edges = map[claim.Status][]claim.Status{
	claim.StatusPending:        {claim.StatusApproved, claim.StatusDenied, claim.StatusReviewRequired},
	claim.StatusReviewRequired: {claim.StatusApproved, claim.StatusDenied},
	claim.StatusApproved:       {claim.StatusVoided},
	claim.StatusDenied:         {claim.StatusUnderAppeal},
	claim.StatusUnderAppeal:    {claim.StatusApproved, claim.StatusDenied},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to claim.Status) bool {
	return slices.Contains(edges[from], to)
}

// Terminal reports whether no transition leaves s.
func Terminal(s claim.Status) bool {
	return len(edges[s]) == 0
}
