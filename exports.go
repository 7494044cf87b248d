package adjudicator

import (
	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/decision"
	"github.com/xraph/adjudicator/types"
)

// Re-export common types for convenience so users don't have to import the
// component packages for everyday calls.

// Money is re-exported from types package.
type Money = types.Money

// Claim is re-exported from claim package.
type Claim = claim.Claim

// DecisionRecord is re-exported from claim package.
type DecisionRecord = claim.DecisionRecord

// VoidRequest is re-exported from claim package.
type VoidRequest = claim.VoidRequest

// StepUpProof is re-exported from claim package.
type StepUpProof = claim.StepUpProof

// Evidence is re-exported from claim package.
type Evidence = claim.Evidence

// Resolution is re-exported from decision package.
type Resolution = decision.Resolution

// Opinion is re-exported from decision package.
type Opinion = decision.Opinion

// UsageSummary is re-exported from benefit package.
type UsageSummary = benefit.Summary

// Re-export Money constructors
var (
	USD        = types.USD
	EUR        = types.EUR
	GBP        = types.GBP
	KES        = types.KES
	Zero       = types.Zero
	ParseMajor = types.ParseMajor
)
