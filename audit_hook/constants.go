package audithook

// Action constants for audit events.
const (
	// Claim actions
	ActionClaimSubmitted     = "claim.submitted"
	ActionClaimApproved      = "claim.approved"
	ActionClaimDenied        = "claim.denied"
	ActionClaimReview        = "claim.review_required"
	ActionClaimVoided        = "claim.voided"
	ActionAppealOpened       = "appeal.opened"
	ActionAdvisorFailed      = "advisor.failed"
	ActionBenefitExhausted   = "benefit.exhausted"
	ActionTransition         = "claim.transition"
	ActionTransitionRejected = "claim.transition_rejected"
)

// Resource constants for audit events.
const (
	ResourceClaim   = "claim"
	ResourceAppeal  = "appeal"
	ResourceBenefit = "benefit"
	ResourceAdvisor = "advisor"
)

// Category constants for audit events.
const (
	CategoryAdjudication = "adjudication"
	CategoryLifecycle    = "lifecycle"
	CategoryBenefit      = "benefit"
	CategoryIntegration  = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
