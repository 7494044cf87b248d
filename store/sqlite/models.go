package sqlite

import (
	"encoding/json"
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

	ID             string            `grove:"id,pk"`
	IdempotencyKey string            `grove:"idempotency_key"`
	MemberID       string            `grove:"member_id"`
	PoolMemberID   string            `grove:"pool_member_id"`
	ProviderID     string            `grove:"provider_id"`
	ServiceType    string            `grove:"service_type"`
	CategoryID     string            `grove:"category_id"`
	CatalogVersion int               `grove:"catalog_version"`
	PeriodKey      string            `grove:"period_key"`
	BilledAmount   int64             `grove:"billed_amount"`
	Currency       string            `grove:"currency"`
	ServiceDate    time.Time         `grove:"service_date"`
	SubmittedAt    time.Time         `grove:"submitted_at"`
	Status         string            `grove:"status"`
	Version        int64             `grove:"version"`
	Decisions      string            `grove:"decisions"`
	LedgerRef      string            `grove:"ledger_ref"`
	VoidInfo       string            `grove:"void_info"`
	Appeal         string            `grove:"appeal"`
	Metadata       string            `grove:"metadata"`
	CreatedAt      time.Time         `grove:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"`
}

func toClaimModel(c *claim.Claim) (*claimModel, error) {
	decisions, err := json.Marshal(c.Decisions)
	if err != nil {
		return nil, err
	}
	voidInfo, err := marshalOptional(c.Void)
	if err != nil {
		return nil, err
	}
	appeal, err := marshalOptional(c.Appeal)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, err
	}

	return &claimModel{
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
		Decisions:      string(decisions),
		LedgerRef:      c.LedgerRef,
		VoidInfo:       voidInfo,
		Appeal:         appeal,
		Metadata:       string(metadata),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}, nil
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
	}
	if isPresent(m.Decisions) {
		if err := json.Unmarshal([]byte(m.Decisions), &c.Decisions); err != nil {
			return nil, err
		}
	}
	if isPresent(m.Metadata) {
		if err := json.Unmarshal([]byte(m.Metadata), &c.Metadata); err != nil {
			return nil, err
		}
	}
	if isPresent(m.VoidInfo) {
		c.Void = new(claim.VoidInfo)
		if err := json.Unmarshal([]byte(m.VoidInfo), c.Void); err != nil {
			return nil, err
		}
	}
	if isPresent(m.Appeal) {
		c.Appeal = new(claim.Appeal)
		if err := json.Unmarshal([]byte(m.Appeal), c.Appeal); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ==================== Audit models ====================

type auditModel struct {
	grove.BaseModel `grove:"table:adjudicator_audit_log"`

	ID         string    `grove:"id,pk"`
	ClaimID    string    `grove:"claim_id"`
	Seq        int64     `grove:"seq"`
	FromStatus string    `grove:"from_status"`
	ToStatus   string    `grove:"to_status"`
	Actor      string    `grove:"actor"`
	Reason     string    `grove:"reason"`
	Rejected   bool      `grove:"rejected"`
	Error      string    `grove:"error"`
	At         time.Time `grove:"at"`
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

type usageModel struct {
	grove.BaseModel `grove:"table:adjudicator_benefit_usage"`

	MemberID   string    `grove:"member_id,pk"`
	CategoryID string    `grove:"category_id,pk"`
	PeriodKey  string    `grove:"period_key,pk"`
	UsedAmount int64     `grove:"used_amount"`
	Currency   string    `grove:"currency"`
	Version    int64     `grove:"version"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toUsageModel(r *benefit.UsageRecord) *usageModel {
	return &usageModel{
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

	ID         string    `grove:"id,pk"`
	MemberID   string    `grove:"member_id"`
	CategoryID string    `grove:"category_id"`
	PeriodKey  string    `grove:"period_key"`
	Kind       string    `grove:"kind"`
	Reference  string    `grove:"reference"`
	Amount     int64     `grove:"amount"`
	UsageAfter int64     `grove:"usage_after"`
	Currency   string    `grove:"currency"`
	CreatedAt  time.Time `grove:"created_at"`
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

// marshalOptional encodes v as JSON text, or "" for nil.
func marshalOptional[T any](v *T) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isPresent(raw string) bool {
	return raw != "" && raw != "null"
}
