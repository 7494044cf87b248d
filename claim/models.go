// Package claim defines the claim record, its decision history and the
// audit trail written for every lifecycle transition.
package claim

import (
	"slices"
	"time"

	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/types"
)

// Status is a claim's lifecycle state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusApproved       Status = "approved"
	StatusDenied         Status = "denied"
	StatusReviewRequired Status = "review_required"
	StatusVoided         Status = "voided"
	StatusUnderAppeal    Status = "under_appeal"
)

// Verdict is the outcome carried by a decision record.
type Verdict string

const (
	VerdictApproved       Verdict = "approved"
	VerdictDenied         Verdict = "denied"
	VerdictReviewRequired Verdict = "review_required"
)

// Status maps a verdict to the claim status it produces.
func (v Verdict) Status() Status { return Status(v) }

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApproved, VerdictDenied, VerdictReviewRequired:
		return true
	}
	return false
}

// DecisionSource records who produced a decision.
type DecisionSource string

const (
	SourceEngine DecisionSource = "engine"
	SourceManual DecisionSource = "manual"
	SourceAppeal DecisionSource = "appeal"
)

// DecisionRecord is an immutable adjudication outcome.
type DecisionRecord struct {
	ID                    id.DecisionID  `json:"id"`
	Verdict               Verdict        `json:"verdict"`
	Confidence            int            `json:"confidence"`
	Reasons               []string       `json:"reasons"`
	RiskScore             int            `json:"risk_score"`
	RiskFlags             []string       `json:"risk_flags,omitempty"`
	CoverageAmount        types.Money    `json:"coverage_amount"`
	PatientResponsibility types.Money    `json:"patient_responsibility"`
	CatalogVersion        int            `json:"catalog_version"`
	Source                DecisionSource `json:"source"`
	DecidedBy             string         `json:"decided_by,omitempty"`
	DecidedAt             time.Time      `json:"decided_at"`
}

// VoidState tracks a void request through verification.
type VoidState string

const (
	VoidRequested VoidState = "requested"
	VoidApproved  VoidState = "approved"
	VoidRejected  VoidState = "rejected"
)

// ProofMethod is the kind of step-up verification presented.
type ProofMethod string

const (
	ProofBiometric ProofMethod = "biometric"
	ProofOTP       ProofMethod = "otp"
)

// StepUpProof is a biometric or one-time-password token checked by an
// identity verifier.
type StepUpProof struct {
	Method ProofMethod `json:"method"`
	Token  string      `json:"token"`
}

// Present reports whether a proof token was supplied.
func (p *StepUpProof) Present() bool {
	return p != nil && p.Token != ""
}

// VoidRequest asks to void an approved claim.
type VoidRequest struct {
	ClaimID            id.ClaimID   `json:"claim_id"`
	Reason             string       `json:"reason"`
	RequestedBy        string       `json:"requested_by"`
	StepUpVerification *StepUpProof `json:"-"`
}

// VoidInfo is the void request attached to a claim. The proof token is
// never persisted.
type VoidInfo struct {
	RequestID   id.VoidRequestID `json:"request_id"`
	Reason      string           `json:"reason"`
	RequestedBy string           `json:"requested_by"`
	ProofMethod ProofMethod      `json:"proof_method,omitempty"`
	State       VoidState        `json:"state"`
	RequestedAt time.Time        `json:"requested_at"`
	ApprovedAt  *time.Time       `json:"approved_at,omitempty"`
	Reversal    string           `json:"reversal,omitempty"`
}

// Active reports whether the void is still in flight.
func (v *VoidInfo) Active() bool {
	return v != nil && v.State == VoidRequested
}

// Evidence is new material submitted with an appeal.
type Evidence struct {
	Notes       string   `json:"notes"`
	Documents   []string `json:"documents,omitempty"`
	SubmittedBy string   `json:"submitted_by"`
}

// Appeal records the single appeal a denied claim may have.
type Appeal struct {
	ID         id.AppealID `json:"id"`
	Evidence   Evidence    `json:"evidence"`
	OpenedAt   time.Time   `json:"opened_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
	Outcome    Verdict     `json:"outcome,omitempty"`
}

// Resolved reports whether the appeal has an outcome.
func (a *Appeal) Resolved() bool {
	return a != nil && a.ResolvedAt != nil
}

// Claim is a request for payment against a member's benefits. Status is
// written only by the lifecycle; Version increments with every write and is
// the compare-and-set token for concurrent transitions.
type Claim struct {
	types.Entity
	ID             id.ClaimID        `json:"id"`
	IdempotencyKey string            `json:"idempotency_key"`
	MemberID       string            `json:"member_id"`
	PoolMemberID   string            `json:"pool_member_id"`
	ProviderID     string            `json:"provider_id"`
	ServiceType    string            `json:"service_type"`
	CategoryID     string            `json:"category_id"`
	CatalogVersion int               `json:"catalog_version"`
	PeriodKey      string            `json:"period_key"`
	BilledAmount   types.Money       `json:"billed_amount"`
	ServiceDate    time.Time         `json:"service_date"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	Status         Status            `json:"status"`
	Version        int64             `json:"version"`
	Decisions      []DecisionRecord  `json:"decisions,omitempty"`
	LedgerRef      string            `json:"ledger_ref,omitempty"`
	Void           *VoidInfo         `json:"void,omitempty"`
	Appeal         *Appeal           `json:"appeal,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Decision returns the latest decision record, or nil before adjudication.
func (c *Claim) Decision() *DecisionRecord {
	if len(c.Decisions) == 0 {
		return nil
	}
	return &c.Decisions[len(c.Decisions)-1]
}

// FirstDecision returns the decision produced at submission.
func (c *Claim) FirstDecision() *DecisionRecord {
	if len(c.Decisions) == 0 {
		return nil
	}
	return &c.Decisions[0]
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (c *Claim) Clone() *Claim {
	out := *c
	out.Decisions = make([]DecisionRecord, len(c.Decisions))
	for i, d := range c.Decisions {
		d.Reasons = slices.Clone(d.Reasons)
		d.RiskFlags = slices.Clone(d.RiskFlags)
		out.Decisions[i] = d
	}
	if c.Void != nil {
		v := *c.Void
		if v.ApprovedAt != nil {
			t := *v.ApprovedAt
			v.ApprovedAt = &t
		}
		out.Void = &v
	}
	if c.Appeal != nil {
		a := *c.Appeal
		a.Evidence.Documents = slices.Clone(a.Evidence.Documents)
		if a.ResolvedAt != nil {
			t := *a.ResolvedAt
			a.ResolvedAt = &t
		}
		out.Appeal = &a
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// AuditEntry is one append-only line of a claim's audit trail. Rejected
// entries record transitions a guard refused.
type AuditEntry struct {
	ID       id.AuditID `json:"id"`
	ClaimID  id.ClaimID `json:"claim_id"`
	Seq      int64      `json:"seq"`
	From     Status     `json:"from"`
	To       Status     `json:"to"`
	Actor    string     `json:"actor"`
	Reason   string     `json:"reason,omitempty"`
	Rejected bool       `json:"rejected"`
	Error    string     `json:"error,omitempty"`
	At       time.Time  `json:"at"`
}
