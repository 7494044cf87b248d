package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/types"
)

// ==================== Claim models ====================

type claimModel struct {
	grove.BaseModel `grove:"table:adjudicator_claims"`

	ID             string            `grove:"id,pk"           bson:"_id"`
	IdempotencyKey string            `grove:"idempotency_key" bson:"idempotency_key"`
	MemberID       string            `grove:"member_id"       bson:"member_id"`
	PoolMemberID   string            `grove:"pool_member_id"  bson:"pool_member_id"`
	ProviderID     string            `grove:"provider_id"     bson:"provider_id"`
	ServiceType    string            `grove:"service_type"    bson:"service_type"`
	CategoryID     string            `grove:"category_id"     bson:"category_id"`
	CatalogVersion int               `grove:"catalog_version" bson:"catalog_version"`
	PeriodKey      string            `grove:"period_key"      bson:"period_key"`
	BilledAmount   int64             `grove:"billed_amount"   bson:"billed_amount"`
	Currency       string            `grove:"currency"        bson:"currency"`
	ServiceDate    time.Time         `grove:"service_date"    bson:"service_date"`
	SubmittedAt    time.Time         `grove:"submitted_at"    bson:"submitted_at"`
	Status         string            `grove:"status"          bson:"status"`
	Version        int64             `grove:"version"         bson:"version"`
	Decisions      []decisionModel   `grove:"decisions"       bson:"decisions"`
	LedgerRef      string            `grove:"ledger_ref"      bson:"ledger_ref"`
	Void           *voidModel        `grove:"void_info"       bson:"void_info,omitempty"`
	Appeal         *appealModel      `grove:"appeal"          bson:"appeal,omitempty"`
	Metadata       map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"      bson:"updated_at"`
}

type decisionModel struct {
	ID                    string    `bson:"id"`
	Verdict               string    `bson:"verdict"`
	Confidence            int       `bson:"confidence"`
	Reasons               []string  `bson:"reasons"`
	RiskScore             int       `bson:"risk_score"`
	RiskFlags             []string  `bson:"risk_flags,omitempty"`
	CoverageAmount        int64     `bson:"coverage_amount"`
	PatientResponsibility int64     `bson:"patient_responsibility"`
	Currency              string    `bson:"currency"`
	CatalogVersion        int       `bson:"catalog_version"`
	Source                string    `bson:"source"`
	DecidedBy             string    `bson:"decided_by,omitempty"`
	DecidedAt             time.Time `bson:"decided_at"`
}

type voidModel struct {
	RequestID   string     `bson:"request_id"`
	Reason      string     `bson:"reason"`
	RequestedBy string     `bson:"requested_by"`
	ProofMethod string     `bson:"proof_method,omitempty"`
	State       string     `bson:"state"`
	RequestedAt time.Time  `bson:"requested_at"`
	ApprovedAt  *time.Time `bson:"approved_at,omitempty"`
	Reversal    string     `bson:"reversal,omitempty"`
}

type appealModel struct {
	ID          string     `bson:"id"`
	Notes       string     `bson:"notes"`
	Documents   []string   `bson:"documents,omitempty"`
	SubmittedBy string     `bson:"submitted_by"`
	OpenedAt    time.Time  `bson:"opened_at"`
	ResolvedAt  *time.Time `bson:"resolved_at,omitempty"`
	Outcome     string     `bson:"outcome,omitempty"`
}

func toClaimModel(c *claim.Claim) *claimModel {
	m := &claimModel{
		ID:             c.ID.String(),
		IdempotencyKey: c.IdempotencyKey,
		MemberID:       c.MemberID,
		PoolMemberID:   c.PoolMemberID,
		ProviderID:     c.ProviderID,
		ServiceType:    c.ServiceType,
		CategoryID:     c.CategoryID,
		CatalogVersion: c.CatalogVersion,
		PeriodKey:      c.PeriodKey,
		BilledAmount:   c.BilledAmount.Amount,
		Currency:       c.BilledAmount.Currency,
		ServiceDate:    c.ServiceDate,
		SubmittedAt:    c.SubmittedAt,
		Status:         string(c.Status),
		Version:        c.Version,
		Decisions:      make([]decisionModel, len(c.Decisions)),
		LedgerRef:      c.LedgerRef,
		Metadata:       c.Metadata,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	for i, d := range c.Decisions {
		m.Decisions[i] = decisionModel{
			ID:                    d.ID.String(),
			Verdict:               string(d.Verdict),
			Confidence:            d.Confidence,
			Reasons:               d.Reasons,
			RiskScore:             d.RiskScore,
			RiskFlags:             d.RiskFlags,
			CoverageAmount:        d.CoverageAmount.Amount,
			PatientResponsibility: d.PatientResponsibility.Amount,
			Currency:              d.CoverageAmount.Currency,
			CatalogVersion:        d.CatalogVersion,
			Source:                string(d.Source),
			DecidedBy:             d.DecidedBy,
			DecidedAt:             d.DecidedAt,
		}
	}
	if v := c.Void; v != nil {
		m.Void = &voidModel{
			RequestID:   v.RequestID.String(),
			Reason:      v.Reason,
			RequestedBy: v.RequestedBy,
			ProofMethod: string(v.ProofMethod),
			State:       string(v.State),
			RequestedAt: v.RequestedAt,
			ApprovedAt:  v.ApprovedAt,
			Reversal:    v.Reversal,
		}
	}
	if a := c.Appeal; a != nil {
		m.Appeal = &appealModel{
			ID:          a.ID.String(),
			Notes:       a.Evidence.Notes,
			Documents:   a.Evidence.Documents,
			SubmittedBy: a.Evidence.SubmittedBy,
			OpenedAt:    a.OpenedAt,
			ResolvedAt:  a.ResolvedAt,
			Outcome:     string(a.Outcome),
		}
	}
	return m
}

func fromClaimModel(m *claimModel) (*claim.Claim, error) {
	claimID, err := id.ParseClaimID(m.ID)
	if err != nil {
		return nil, err
	}

	c := &claim.Claim{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             claimID,
		IdempotencyKey: m.IdempotencyKey,
		MemberID:       m.MemberID,
		PoolMemberID:   m.PoolMemberID,
		ProviderID:     m.ProviderID,
		ServiceType:    m.ServiceType,
		CategoryID:     m.CategoryID,
		CatalogVersion: m.CatalogVersion,
		PeriodKey:      m.PeriodKey,
		BilledAmount:   types.Money{Amount: m.BilledAmount, Currency: m.Currency},
		ServiceDate:    m.ServiceDate.UTC(),
		SubmittedAt:    m.SubmittedAt.UTC(),
		Status:         claim.Status(m.Status),
		Version:        m.Version,
		LedgerRef:      m.LedgerRef,
		Metadata:       m.Metadata,
	}

	for _, d := range m.Decisions {
		decisionID, err := id.ParseDecisionID(d.ID)
		if err != nil {
			return nil, err
		}
		c.Decisions = append(c.Decisions, claim.DecisionRecord{
			ID:                    decisionID,
			Verdict:               claim.Verdict(d.Verdict),
			Confidence:            d.Confidence,
			Reasons:               d.Reasons,
			RiskScore:             d.RiskScore,
			RiskFlags:             d.RiskFlags,
			CoverageAmount:        types.Money{Amount: d.CoverageAmount, Currency: d.Currency},
			PatientResponsibility: types.Money{Amount: d.PatientResponsibility, Currency: d.Currency},
			CatalogVersion:        d.CatalogVersion,
			Source:                claim.DecisionSource(d.Source),
			DecidedBy:             d.DecidedBy,
			DecidedAt:             d.DecidedAt.UTC(),
		})
	}

	if v := m.Void; v != nil {
		requestID, err := id.ParseVoidRequestID(v.RequestID)
		if err != nil {
			return nil, err
		}
		c.Void = &claim.VoidInfo{
			RequestID:   requestID,
			Reason:      v.Reason,
			RequestedBy: v.RequestedBy,
			ProofMethod: claim.ProofMethod(v.ProofMethod),
			State:       claim.VoidState(v.State),
			RequestedAt: v.RequestedAt.UTC(),
			ApprovedAt:  v.ApprovedAt,
			Reversal:    v.Reversal,
		}
	}

	if a := m.Appeal; a != nil {
		appealID, err := id.ParseAppealID(a.ID)
		if err != nil {
			return nil, err
		}
		c.Appeal = &claim.Appeal{
			ID: appealID,
			Evidence: claim.Evidence{
				Notes:       a.Notes,
				Documents:   a.Documents,
				SubmittedBy: a.SubmittedBy,
			},
			OpenedAt:   a.OpenedAt.UTC(),
			ResolvedAt: a.ResolvedAt,
			Outcome:    claim.Verdict(a.Outcome),
		}
	}
	return c, nil
}

// ==================== Audit models ====================

type auditModel struct {
	grove.BaseModel `grove:"table:adjudicator_audit_log"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	ClaimID    string    `grove:"claim_id"    bson:"claim_id"`
	Seq        int64     `grove:"seq"         bson:"seq"`
	FromStatus string    `grove:"from_status" bson:"from_status"`
	ToStatus   string    `grove:"to_status"   bson:"to_status"`
	Actor      string    `grove:"actor"       bson:"actor"`
	Reason     string    `grove:"reason"      bson:"reason,omitempty"`
	Rejected   bool      `grove:"rejected"    bson:"rejected"`
	Error      string    `grove:"error"       bson:"error,omitempty"`
	At         time.Time `grove:"at"          bson:"at"`
}

func toAuditModel(e *claim.AuditEntry) *auditModel {
	return &auditModel{
		ID:         e.ID.String(),
		ClaimID:    e.ClaimID.String(),
		Seq:        e.Seq,
		FromStatus: string(e.From),
		ToStatus:   string(e.To),
		Actor:      e.Actor,
		Reason:     e.Reason,
		Rejected:   e.Rejected,
		Error:      e.Error,
		At:         e.At,
	}
}

func fromAuditModel(m *auditModel) (*claim.AuditEntry, error) {
	auditID, err := id.ParseAuditID(m.ID)
	if err != nil {
		return nil, err
	}
	claimID, err := id.ParseClaimID(m.ClaimID)
	if err != nil {
		return nil, err
	}
	return &claim.AuditEntry{
		ID:       auditID,
		ClaimID:  claimID,
		Seq:      m.Seq,
		From:     claim.Status(m.FromStatus),
		To:       claim.Status(m.ToStatus),
		Actor:    m.Actor,
		Reason:   m.Reason,
		Rejected: m.Rejected,
		Error:    m.Error,
		At:       m.At.UTC(),
	}, nil
}

// ==================== Benefit models ====================

// usageModel is keyed by Key.String() so the compare-and-set filter is a
// single _id lookup.
type usageModel struct {
	grove.BaseModel `grove:"table:adjudicator_benefit_usage"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	MemberID   string    `grove:"member_id"   bson:"member_id"`
	CategoryID string    `grove:"category_id" bson:"category_id"`
	PeriodKey  string    `grove:"period_key"  bson:"period_key"`
	UsedAmount int64     `grove:"used_amount" bson:"used_amount"`
	Currency   string    `grove:"currency"    bson:"currency"`
	Version    int64     `grove:"version"     bson:"version"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toUsageModel(r *benefit.UsageRecord) *usageModel {
	return &usageModel{
		ID:         r.Key.String(),
		MemberID:   r.MemberID,
		CategoryID: r.CategoryID,
		PeriodKey:  r.PeriodKey,
		UsedAmount: r.Used.Amount,
		Currency:   r.Used.Currency,
		Version:    r.Version,
		UpdatedAt:  r.UpdatedAt,
	}
}

func fromUsageModel(m *usageModel) *benefit.UsageRecord {
	return &benefit.UsageRecord{
		Key: benefit.Key{
			MemberID:   m.MemberID,
			CategoryID: m.CategoryID,
			PeriodKey:  m.PeriodKey,
		},
		Used:      types.Money{Amount: m.UsedAmount, Currency: m.Currency},
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type entryModel struct {
	grove.BaseModel `grove:"table:adjudicator_benefit_entries"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	MemberID   string    `grove:"member_id"   bson:"member_id"`
	CategoryID string    `grove:"category_id" bson:"category_id"`
	PeriodKey  string    `grove:"period_key"  bson:"period_key"`
	Kind       string    `grove:"kind"        bson:"kind"`
	Reference  string    `grove:"reference"   bson:"reference"`
	Amount     int64     `grove:"amount"      bson:"amount"`
	UsageAfter int64     `grove:"usage_after" bson:"usage_after"`
	Currency   string    `grove:"currency"    bson:"currency"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
}

func toEntryModel(e *benefit.Entry) *entryModel {
	return &entryModel{
		ID:         e.ID.String(),
		MemberID:   e.Key.MemberID,
		CategoryID: e.Key.CategoryID,
		PeriodKey:  e.Key.PeriodKey,
		Kind:       string(e.Kind),
		Reference:  e.Reference,
		Amount:     e.Amount.Amount,
		UsageAfter: e.UsageAfter.Amount,
		Currency:   e.Amount.Currency,
		CreatedAt:  e.CreatedAt,
	}
}

func fromEntryModel(m *entryModel) (*benefit.Entry, error) {
	entryID, err := id.ParseBenefitEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	return &benefit.Entry{
		ID: entryID,
		Key: benefit.Key{
			MemberID:   m.MemberID,
			CategoryID: m.CategoryID,
			PeriodKey:  m.PeriodKey,
		},
		Kind:       benefit.EntryKind(m.Kind),
		Reference:  m.Reference,
		Amount:     types.Money{Amount: m.Amount, Currency: m.Currency},
		UsageAfter: types.Money{Amount: m.UsageAfter, Currency: m.Currency},
		CreatedAt:  m.CreatedAt.UTC(),
	}, nil
}
