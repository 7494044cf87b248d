package adjudicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/decision"
	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/lifecycle"
	"github.com/xraph/adjudicator/member"
	"github.com/xraph/adjudicator/plugin"
	"github.com/xraph/adjudicator/risk"
	"github.com/xraph/adjudicator/store"
	"github.com/xraph/adjudicator/types"
)

// actorEngine is the audit actor for automatic adjudication.
const actorEngine = "engine"

// idempotencyNamespace scopes derived idempotency keys.
var idempotencyNamespace = uuid.MustParse("6f1c2b1e-3f5d-5a7e-9c44-0d8a5e2b7c10")

// ClaimInput is what a caller submits for adjudication. The benefit
// category is resolved from ServiceType; callers never supply it.
type ClaimInput struct {
	MemberID     string            `json:"member_id"`
	ProviderID   string            `json:"provider_id"`
	ServiceType  string            `json:"service_type"`
	BilledAmount types.Money       `json:"billed_amount"`
	ServiceDate  time.Time         `json:"service_date"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate checks the input for missing or malformed fields.
func (in ClaimInput) Validate() error {
	switch {
	case strings.TrimSpace(in.MemberID) == "":
		return ValidationError{Field: "member_id", Message: "required"}
	case strings.TrimSpace(in.ProviderID) == "":
		return ValidationError{Field: "provider_id", Message: "required"}
	case strings.TrimSpace(in.ServiceType) == "":
		return ValidationError{Field: "service_type", Message: "required"}
	case in.BilledAmount.Currency == "":
		return ValidationError{Field: "billed_amount", Message: "currency required"}
	case !in.BilledAmount.IsPositive():
		return ValidationError{Field: "billed_amount", Message: "must be positive"}
	case in.ServiceDate.IsZero():
		return ValidationError{Field: "service_date", Message: "required"}
	}
	return nil
}

// IdempotencyKey derives a stable key from the member, provider, service,
// date and amount of a submission.
func IdempotencyKey(in ClaimInput) string {
	name := strings.Join([]string{
		in.MemberID,
		in.ProviderID,
		normalizeService(in.ServiceType),
		in.ServiceDate.UTC().Format(time.DateOnly),
		in.BilledAmount.String(),
	}, "|")
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

// Engine is the adjudication service. It orchestrates the catalog, benefit
// ledger, risk scorer, decision procedure and claim lifecycle per request
// and processes each idempotency key at most once.
type Engine struct {
	store     store.Store
	catalog   *catalog.Catalog
	ledger    *benefit.Ledger
	lifecycle *lifecycle.Lifecycle
	decisions *decision.Engine
	scorer    *risk.Scorer
	advisor   decision.Advisor
	plugins   *plugin.Registry
	directory member.Directory
	verifier  lifecycle.IdentityVerifier
	logger    *slog.Logger

	// Configuration
	thresholds     decision.Thresholds
	riskConfig     risk.Config
	advisorTimeout time.Duration
	advisorTries   uint
	ledgerRetries  int
	voidTimeout    time.Duration
	now            func() time.Time
}

// New creates an Engine. The advisor is wrapped with a per-call timeout and
// bounded retries; see WithAdvisorTimeout and WithAdvisorRetries.
func New(s store.Store, policies *catalog.Catalog, advisor decision.Advisor, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		catalog:        policies,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		thresholds:     decision.DefaultThresholds(),
		riskConfig:     risk.DefaultConfig(),
		advisorTimeout: 5 * time.Second,
		advisorTries:   3,
		ledgerRetries:  16,
		voidTimeout:    5 * time.Minute,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.ledger = benefit.NewLedger(s,
		benefit.WithLogger(e.logger),
		benefit.WithMaxRetries(e.ledgerRetries),
	)
	e.lifecycle = lifecycle.New(s, e.ledger, policies, e.verifier,
		lifecycle.WithLogger(e.logger),
		lifecycle.WithObserver(e.plugins),
		lifecycle.WithVoidTimeout(e.voidTimeout),
	)
	e.decisions = decision.NewEngine(e.thresholds)
	e.scorer = risk.NewScorer(e.riskConfig)
	e.advisor = decision.NewRetryingAdvisor(advisor,
		decision.WithAttemptTimeout(e.advisorTimeout),
		decision.WithMaxTries(e.advisorTries),
		decision.WithRetryLogger(e.logger),
	)

	return e
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("adjudicator started",
		"high_risk", e.thresholds.HighRisk,
		"auto_approval_confidence", e.thresholds.AutoApprovalConfidence,
		"advisor_timeout", e.advisorTimeout,
		"advisor_tries", e.advisorTries,
		"plugins", e.plugins.Count(),
	)
	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Catalog returns the policy catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────

// Submit adjudicates a claim and returns its decision. Denials and reviews
// are decisions, not errors.
//
// key makes the call idempotent; an empty key is derived with
// IdempotencyKey. A key whose claim is already decided returns that
// claim's original decision without touching the ledger. A key whose claim
// is still pending (an earlier call failed after creating it) resumes
// adjudication. A key reused with different input fails with
// ErrIdempotencyMismatch.
func (e *Engine) Submit(ctx context.Context, key string, in ClaimInput) (*claim.DecisionRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in.BilledAmount = types.New(in.BilledAmount.Amount, in.BilledAmount.Currency)
	if key == "" {
		key = IdempotencyKey(in)
	}

	c, err := e.store.GetClaimByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		return e.resume(ctx, c, in)
	case !errors.Is(err, claim.ErrNotFound):
		return nil, err
	}

	c, err = e.newClaim(ctx, key, in)
	if err != nil {
		return nil, err
	}

	if err := e.store.CreateClaim(ctx, c); err != nil {
		if !errors.Is(err, claim.ErrDuplicateKey) {
			return nil, err
		}
		// Lost the race to a concurrent submission with the same key.
		existing, getErr := e.store.GetClaimByIdempotencyKey(ctx, key)
		if getErr != nil {
			return nil, getErr
		}
		return e.resume(ctx, existing, in)
	}

	e.logger.Info("claim submitted",
		"claim_id", c.ID.String(),
		"member_id", c.MemberID,
		"category_id", c.CategoryID,
		"billed", c.BilledAmount.String(),
	)
	e.plugins.EmitClaimSubmitted(ctx, c)

	return e.adjudicate(ctx, c, claim.SourceEngine)
}

func (e *Engine) resume(ctx context.Context, c *claim.Claim, in ClaimInput) (*claim.DecisionRecord, error) {
	if !sameInput(c, in) {
		return nil, fmt.Errorf("%w: key %q belongs to claim %s", ErrIdempotencyMismatch, c.IdempotencyKey, c.ID)
	}
	if rec := c.FirstDecision(); rec != nil {
		return rec, nil
	}
	e.logger.Info("resuming pending claim", "claim_id", c.ID.String())
	return e.adjudicate(ctx, c, claim.SourceEngine)
}

func (e *Engine) newClaim(ctx context.Context, key string, in ClaimInput) (*claim.Claim, error) {
	snap, err := e.catalog.Current()
	if err != nil {
		return nil, err
	}
	cat, err := snap.ResolveCategory(in.ServiceType)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(in.BilledAmount.Currency, snap.Currency) {
		return nil, fmt.Errorf("%w: billed %s, catalog %s", ErrCurrencyMismatch, in.BilledAmount.Currency, snap.Currency)
	}
	period, err := cat.PeriodKey(in.ServiceDate)
	if err != nil {
		return nil, err
	}
	pool, err := e.poolOwner(ctx, in.MemberID, true)
	if err != nil {
		return nil, err
	}

	return &claim.Claim{
		Entity:         types.NewEntity(),
		ID:             id.NewClaimID(),
		IdempotencyKey: key,
		MemberID:       in.MemberID,
		PoolMemberID:   pool,
		ProviderID:     in.ProviderID,
		ServiceType:    normalizeService(in.ServiceType),
		CategoryID:     cat.ID,
		CatalogVersion: snap.Version,
		PeriodKey:      period,
		BilledAmount:   in.BilledAmount,
		ServiceDate:    in.ServiceDate.UTC(),
		SubmittedAt:    e.now().UTC(),
		Status:         claim.StatusPending,
		Metadata:       in.Metadata,
	}, nil
}

// poolOwner resolves whose benefit pool a member draws from.
func (e *Engine) poolOwner(ctx context.Context, memberID string, requireActive bool) (string, error) {
	if e.directory == nil {
		return memberID, nil
	}
	m, err := e.directory.Lookup(ctx, memberID)
	if err != nil {
		return "", err
	}
	if requireActive && !m.Active {
		return "", fmt.Errorf("%w: %s", ErrMemberInactive, memberID)
	}
	return m.PoolOwner(), nil
}

// ──────────────────────────────────────────────────
// Adjudication
// ──────────────────────────────────────────────────

// adjudicate runs the decision procedure for a pending or under_appeal
// claim and hands the verdict to the lifecycle.
func (e *Engine) adjudicate(ctx context.Context, c *claim.Claim, source claim.DecisionSource) (*claim.DecisionRecord, error) {
	snap, err := e.catalog.Snapshot(c.CatalogVersion)
	if err != nil {
		return nil, err
	}
	cat, err := snap.Category(c.CategoryID)
	if err != nil {
		return nil, err
	}
	usage, err := e.ledger.CurrentUsage(ctx, benefit.Key{
		MemberID:   c.PoolMemberID,
		CategoryID: c.CategoryID,
		PeriodKey:  c.PeriodKey,
	}, snap.Currency)
	if err != nil {
		return nil, err
	}

	// Risk scoring and the advisor call do not depend on each other.
	var (
		assessment risk.Assessment
		opinion    decision.Opinion
		advisorErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		history, err := e.history(gctx, c)
		if err != nil {
			return err
		}
		assessment = e.scorer.Score(risk.Subject{
			ClaimID:     c.ID.String(),
			MemberID:    c.MemberID,
			ProviderID:  c.ProviderID,
			ServiceType: c.ServiceType,
			Billed:      c.BilledAmount,
			ServiceDate: c.ServiceDate,
		}, history)
		return nil
	})
	g.Go(func() error {
		opinion, advisorErr = e.advisor.Evaluate(gctx, c)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if advisorErr != nil {
		e.logger.Warn("advisor unavailable; claim left unchanged",
			"claim_id", c.ID.String(),
			"status", string(c.Status),
			"error", advisorErr,
		)
		e.plugins.EmitAdvisorFailed(ctx, c, advisorErr)
		if !errors.Is(advisorErr, ErrAdvisorUnavailable) {
			advisorErr = fmt.Errorf("%w: %w", ErrAdvisorUnavailable, advisorErr)
		}
		return nil, advisorErr
	}

	rec, err := e.decisions.Adjudicate(decision.Input{
		Claim:    c,
		Category: cat,
		Usage:    usage,
		Risk:     assessment,
		Opinion:  opinion,
		Source:   source,
		At:       e.now(),
	})
	if err != nil {
		e.plugins.EmitAdvisorFailed(ctx, c, err)
		return nil, err
	}

	updated, err := e.lifecycle.ApplyVerdict(ctx, c.ID, rec, actorEngine)
	if err != nil {
		if source == claim.SourceEngine && (errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrAlreadyAdjudicated)) {
			// A concurrent submission with the same key decided first.
			if winner, getErr := e.store.GetClaim(ctx, c.ID); getErr == nil && winner.FirstDecision() != nil {
				return winner.FirstDecision(), nil
			}
		}
		return nil, err
	}

	e.emitDecided(ctx, updated)
	return updated.Decision(), nil
}

// history collects the provider's and member's recent claims for scoring.
func (e *Engine) history(ctx context.Context, c *claim.Claim) ([]risk.HistoryItem, error) {
	since := e.scorer.Config().Lookback(c.ServiceDate)

	byProvider, err := e.store.ListClaimsByProvider(ctx, c.ProviderID, since)
	if err != nil {
		return nil, err
	}
	byMember, err := e.store.ListClaimsByMember(ctx, c.MemberID, since)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(byProvider)+len(byMember))
	items := make([]risk.HistoryItem, 0, len(byProvider)+len(byMember))
	for _, h := range slices.Concat(byProvider, byMember) {
		key := h.ID.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, risk.HistoryItem{
			ClaimID:     key,
			MemberID:    h.MemberID,
			ProviderID:  h.ProviderID,
			ServiceType: h.ServiceType,
			Billed:      h.BilledAmount,
			ServiceDate: h.ServiceDate,
			Voided:      h.Status == claim.StatusVoided,
		})
	}
	return items, nil
}

func (e *Engine) emitDecided(ctx context.Context, c *claim.Claim) {
	rec := c.Decision()
	if rec == nil {
		return
	}
	e.logger.Info("claim adjudicated",
		"claim_id", c.ID.String(),
		"verdict", string(rec.Verdict),
		"source", string(rec.Source),
		"coverage", rec.CoverageAmount.String(),
		"risk_score", rec.RiskScore,
	)
	e.plugins.EmitClaimAdjudicated(ctx, c)
	if slices.Contains(rec.Reasons, decision.ReasonBenefitExhausted) {
		e.plugins.EmitBenefitExhausted(ctx, c)
	}
}

// ──────────────────────────────────────────────────
// Manual resolution
// ──────────────────────────────────────────────────

// ResolveReview settles a review_required claim with a reviewer's decision.
// An approval the benefit pool can no longer cover fails with
// ErrInsufficientBenefit and leaves the claim in review.
func (e *Engine) ResolveReview(ctx context.Context, claimID id.ClaimID, res decision.Resolution) (*claim.DecisionRecord, error) {
	return e.resolve(ctx, claimID, res, claim.SourceManual)
}

// ResolveAppeal settles an under_appeal claim with a reviewer's decision.
func (e *Engine) ResolveAppeal(ctx context.Context, claimID id.ClaimID, res decision.Resolution) (*claim.DecisionRecord, error) {
	return e.resolve(ctx, claimID, res, claim.SourceAppeal)
}

func (e *Engine) resolve(ctx context.Context, claimID id.ClaimID, res decision.Resolution, source claim.DecisionSource) (*claim.DecisionRecord, error) {
	c, err := e.lifecycle.Resolve(ctx, claimID, res, source)
	if err != nil {
		return nil, err
	}
	e.emitDecided(ctx, c)
	return c.Decision(), nil
}

// ──────────────────────────────────────────────────
// Void and appeal
// ──────────────────────────────────────────────────

// Void reverses an approved claim's benefit consumption after step-up
// verification and moves it to voided.
func (e *Engine) Void(ctx context.Context, claimID id.ClaimID, req claim.VoidRequest) (*claim.Claim, error) {
	req.ClaimID = claimID
	c, err := e.lifecycle.Void(ctx, req)
	if err != nil {
		return nil, err
	}

	e.logger.Info("claim voided",
		"claim_id", c.ID.String(),
		"requested_by", req.RequestedBy,
		"reversed", c.Decision().CoverageAmount.String(),
	)
	e.plugins.EmitClaimVoided(ctx, c)
	return c, nil
}

// Appeal reopens a denied claim with new evidence and re-adjudicates it
// against its pinned catalog version. A claim already under appeal whose
// re-adjudication failed (for example because the advisor was down) is
// re-adjudicated again; evidence is then ignored.
func (e *Engine) Appeal(ctx context.Context, claimID id.ClaimID, evidence claim.Evidence) (*claim.DecisionRecord, error) {
	c, err := e.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	if c.Status != claim.StatusUnderAppeal || c.Appeal.Resolved() {
		c, err = e.lifecycle.OpenAppeal(ctx, claimID, evidence)
		if err != nil {
			return nil, err
		}
		e.logger.Info("appeal opened", "claim_id", c.ID.String(), "appeal_id", c.Appeal.ID.String())
		e.plugins.EmitAppealOpened(ctx, c)
	}

	return e.adjudicate(ctx, c, claim.SourceAppeal)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Claim returns a claim by ID.
func (e *Engine) Claim(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	return e.store.GetClaim(ctx, claimID)
}

// AuditTrail returns every transition and rejected attempt for a claim.
func (e *Engine) AuditTrail(ctx context.Context, claimID id.ClaimID) ([]*claim.AuditEntry, error) {
	return e.store.ListAudit(ctx, claimID)
}

// BenefitUsage reports a member's usage in each category's current period
// under the current catalog. Dependents see their principal's pool.
func (e *Engine) BenefitUsage(ctx context.Context, memberID string) ([]benefit.Summary, error) {
	snap, err := e.catalog.Current()
	if err != nil {
		return nil, err
	}
	pool, err := e.poolOwner(ctx, memberID, false)
	if err != nil {
		return nil, err
	}
	return e.ledger.Usage(ctx, pool, snap, e.now())
}

func sameInput(c *claim.Claim, in ClaimInput) bool {
	return c.MemberID == in.MemberID &&
		c.ProviderID == in.ProviderID &&
		c.ServiceType == normalizeService(in.ServiceType) &&
		c.BilledAmount.Equal(in.BilledAmount) &&
		c.ServiceDate.Equal(in.ServiceDate.UTC())
}

func normalizeService(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
