// Package decision turns policy, ledger, risk and advisor inputs into a
// single adjudication verdict.
package decision

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/risk"
	"github.com/xraph/adjudicator/types"
)

// ReasonBenefitExhausted is the reason attached when a claim would take its
// category past the periodic limit.
const ReasonBenefitExhausted = "benefit exhausted"

// ErrReasonRequired is returned when a manual denial carries no reason.
var ErrReasonRequired = errors.New("decision: a reason is required")

// Thresholds are the configurable cut-offs of the decision procedure.
type Thresholds struct {
	HighRisk               int `json:"high_risk" mapstructure:"high_risk" yaml:"high_risk"`
	AutoApprovalConfidence int `json:"auto_approval_confidence" mapstructure:"auto_approval_confidence" yaml:"auto_approval_confidence"`
}

// DefaultThresholds returns review at risk 70 and auto-approval at
// confidence 75.
func DefaultThresholds() Thresholds {
	return Thresholds{HighRisk: 70, AutoApprovalConfidence: 75}
}

// Input gathers everything one adjudication needs.
type Input struct {
	Claim    *claim.Claim
	Category catalog.BenefitCategory
	Usage    types.Money
	Risk     risk.Assessment
	Opinion  Opinion
	Source   claim.DecisionSource
	At       time.Time
}

// Engine applies the decision procedure. It holds no state beyond its
// thresholds and is safe for concurrent use.
type Engine struct {
	thresholds Thresholds
}

// NewEngine creates an engine. Zero thresholds take their defaults.
func NewEngine(t Thresholds) *Engine {
	def := DefaultThresholds()
	if t.HighRisk <= 0 {
		t.HighRisk = def.HighRisk
	}
	if t.AutoApprovalConfidence <= 0 {
		t.AutoApprovalConfidence = def.AutoApprovalConfidence
	}
	return &Engine{thresholds: t}
}

// Thresholds returns the effective thresholds.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Adjudicate evaluates, in order:
//
//  1. benefit check: usage plus the covered share above the limit denies;
//     nothing else is evaluated.
//  2. risk: a score at or above HighRisk requires review whatever the
//     advisor says.
//  3. advisor: otherwise the advisor's verdict stands, except an approval
//     below AutoApprovalConfidence becomes a review.
//
// Reasons list every rule that fired in that order followed by the
// advisor's own reasons. Business outcomes are never errors; the only error
// is ErrAdvisorUnavailable for an opinion that cannot be used.
func (e *Engine) Adjudicate(in Input) (claim.DecisionRecord, error) {
	if err := in.Opinion.Validate(); err != nil {
		return claim.DecisionRecord{}, fmt.Errorf("%w: %w", ErrAdvisorUnavailable, err)
	}

	billed := in.Claim.BilledAmount
	coverage, patient := types.Split(billed, in.Category.CoveragePercent)
	rec := e.newRecord(in)

	// Compared against what remains so huge amounts cannot wrap the sum.
	if coverage.GreaterThan(in.Category.PeriodicLimit.Subtract(in.Usage)) {
		return Exhausted(rec, billed), nil
	}

	var reasons []string
	verdict := in.Opinion.Verdict

	if in.Risk.Score >= e.thresholds.HighRisk {
		verdict = claim.VerdictReviewRequired
		reasons = append(reasons, riskReason(in.Risk, e.thresholds.HighRisk))
	} else if verdict == claim.VerdictApproved && in.Opinion.Confidence < e.thresholds.AutoApprovalConfidence {
		verdict = claim.VerdictReviewRequired
		reasons = append(reasons, fmt.Sprintf("advisor confidence %d below auto-approval threshold %d",
			in.Opinion.Confidence, e.thresholds.AutoApprovalConfidence))
	}

	reasons = append(reasons, in.Opinion.Reasons...)
	if len(reasons) == 0 {
		switch verdict {
		case claim.VerdictDenied:
			reasons = append(reasons, "denied by clinical advisor")
		case claim.VerdictReviewRequired:
			reasons = append(reasons, "clinical advisor requested manual review")
		}
	}

	rec.Verdict = verdict
	rec.Reasons = reasons
	if verdict == claim.VerdictDenied {
		rec.CoverageAmount = types.Zero(billed.Currency)
		rec.PatientResponsibility = billed
	} else {
		rec.CoverageAmount = coverage
		rec.PatientResponsibility = patient
	}
	return rec, nil
}

// Exhausted returns rec rewritten as a benefit-exhausted denial. It is used
// both by the benefit check and when the ledger refuses the commit.
func Exhausted(rec claim.DecisionRecord, billed types.Money) claim.DecisionRecord {
	rec.ID = id.NewDecisionID()
	rec.Verdict = claim.VerdictDenied
	rec.Reasons = []string{ReasonBenefitExhausted}
	rec.CoverageAmount = types.Zero(billed.Currency)
	rec.PatientResponsibility = billed
	return rec
}

// Resolution is a reviewer's manual decision on a claim.
type Resolution struct {
	Verdict  claim.Verdict `json:"verdict"`
	Reviewer string        `json:"reviewer"`
	Reason   string        `json:"reason"`
}

// Resolve builds the decision record for a manual resolution. Only
// approved and denied are valid outcomes.
func Resolve(c *claim.Claim, cat catalog.BenefitCategory, r Resolution, source claim.DecisionSource, at time.Time) (claim.DecisionRecord, error) {
	if r.Verdict != claim.VerdictApproved && r.Verdict != claim.VerdictDenied {
		return claim.DecisionRecord{}, fmt.Errorf("decision: manual verdict must be approved or denied, got %q", r.Verdict)
	}
	reason := strings.TrimSpace(r.Reason)
	if r.Verdict == claim.VerdictDenied && reason == "" {
		return claim.DecisionRecord{}, ErrReasonRequired
	}

	rec := claim.DecisionRecord{
		ID:             id.NewDecisionID(),
		Verdict:        r.Verdict,
		Confidence:     100,
		CatalogVersion: c.CatalogVersion,
		Source:         source,
		DecidedBy:      r.Reviewer,
		DecidedAt:      at.UTC(),
	}
	if prior := c.Decision(); prior != nil {
		rec.RiskScore = prior.RiskScore
		rec.RiskFlags = slices.Clone(prior.RiskFlags)
	}
	if reason != "" {
		rec.Reasons = []string{reason}
	}
	if r.Verdict == claim.VerdictApproved {
		rec.CoverageAmount, rec.PatientResponsibility = types.Split(c.BilledAmount, cat.CoveragePercent)
	} else {
		rec.CoverageAmount = types.Zero(c.BilledAmount.Currency)
		rec.PatientResponsibility = c.BilledAmount
	}
	return rec, nil
}

func (e *Engine) newRecord(in Input) claim.DecisionRecord {
	flags := make([]string, len(in.Risk.Flags))
	for i, f := range in.Risk.Flags {
		flags[i] = string(f)
	}
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	source := in.Source
	if source == "" {
		source = claim.SourceEngine
	}
	return claim.DecisionRecord{
		ID:             id.NewDecisionID(),
		Confidence:     in.Opinion.Confidence,
		RiskScore:      in.Risk.Score,
		RiskFlags:      flags,
		CatalogVersion: in.Claim.CatalogVersion,
		Source:         source,
		DecidedAt:      at.UTC(),
	}
}

func riskReason(a risk.Assessment, threshold int) string {
	msg := fmt.Sprintf("risk score %d at or above review threshold %d", a.Score, threshold)
	if len(a.Reasons) > 0 {
		msg += ": " + strings.Join(a.Reasons, "; ")
	}
	return msg
}
