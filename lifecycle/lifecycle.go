package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/decision"
	"github.com/xraph/adjudicator/id"
)

// IdentityVerifier checks step-up proofs (biometric or OTP) for a member.
type IdentityVerifier interface {
	Verify(ctx context.Context, memberID string, proof claim.StepUpProof) (bool, error)
}

// VerifierFunc adapts a function to IdentityVerifier.
type VerifierFunc func(ctx context.Context, memberID string, proof claim.StepUpProof) (bool, error)

// Verify implements IdentityVerifier.
func (f VerifierFunc) Verify(ctx context.Context, memberID string, proof claim.StepUpProof) (bool, error) {
	return f(ctx, memberID, proof)
}

// Policies returns pinned catalog snapshots. *catalog.Catalog satisfies it.
type Policies interface {
	Snapshot(version int) (*catalog.Snapshot, error)
}

// Observer is told about every audit entry after it is written.
type Observer interface {
	Transitioned(ctx context.Context, c *claim.Claim, entry *claim.AuditEntry)
	Rejected(ctx context.Context, c *claim.Claim, entry *claim.AuditEntry)
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) { l.logger = logger }
}

// WithVoidTimeout sets how long an unfinished void request holds the
// claim's void slot before another request may take it over.
func WithVoidTimeout(d time.Duration) Option {
	return func(l *Lifecycle) { l.voidTimeout = d }
}

// WithObserver sets the observer notified of transitions.
func WithObserver(o Observer) Option {
	return func(l *Lifecycle) { l.observer = o }
}

// Lifecycle applies guarded transitions to claims. Each transition is a
// compare-and-set on the claim version, so two transitions on one claim
// serialize while different claims proceed independently.
type Lifecycle struct {
	claims   claim.Store
	ledger   *benefit.Ledger
	policies Policies
	verifier IdentityVerifier
	observer Observer
	logger   *slog.Logger

	voidTimeout time.Duration
}

// New creates a lifecycle.
func New(claims claim.Store, ledger *benefit.Ledger, policies Policies, verifier IdentityVerifier, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		claims:   claims,
		ledger:   ledger,
		policies: policies,
		verifier: verifier,
		logger:   slog.Default(),

		voidTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ──────────────────────────────────────────────────
// Adjudication
// ──────────────────────────────────────────────────

// ApplyVerdict attaches a decision record to a claim and moves it to the
// verdict's status.
//
// Pending claims take engine decisions, review_required claims take manual
// ones, and under_appeal claims take appeal decisions. An approval commits
// the covered amount to the benefit ledger first; if the ledger refuses it
// an engine approval becomes a benefit-exhausted denial, while a manual
// approval fails with benefit.ErrInsufficientBenefit and leaves the claim
// unchanged.
func (l *Lifecycle) ApplyVerdict(ctx context.Context, claimID id.ClaimID, rec claim.DecisionRecord, actor string) (*claim.Claim, error) {
	c, err := l.claims.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return l.apply(ctx, c, rec, actor)
}

// Resolve records a reviewer's decision. A SourceManual resolution settles
// a review_required claim and a SourceAppeal resolution settles an
// under_appeal claim; any other pairing is rejected.
func (l *Lifecycle) Resolve(ctx context.Context, claimID id.ClaimID, res decision.Resolution, source claim.DecisionSource) (*claim.Claim, error) {
	c, err := l.claims.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	want := claim.StatusReviewRequired
	if source == claim.SourceAppeal {
		want = claim.StatusUnderAppeal
	}
	if source == claim.SourceEngine || c.Status != want {
		return nil, l.reject(ctx, c, claim.Status(res.Verdict), res.Reviewer, ErrNotAwaitingResolution,
			fmt.Sprintf("claim is %s; a %s resolution needs a %s claim", c.Status, source, want))
	}

	cat, err := l.category(c)
	if err != nil {
		return nil, err
	}
	rec, err := decision.Resolve(c, cat, res, source, time.Now())
	if err != nil {
		return nil, err
	}
	return l.apply(ctx, c, rec, res.Reviewer)
}

func (l *Lifecycle) apply(ctx context.Context, c *claim.Claim, rec claim.DecisionRecord, actor string) (*claim.Claim, error) {
	from := c.Status
	to := rec.Verdict.Status()
	if detail, err := guardVerdict(c, rec); err != nil {
		return nil, l.reject(ctx, c, to, actor, err, detail)
	}
	if from == claim.StatusUnderAppeal && to == claim.StatusReviewRequired {
		// An appeal the engine cannot settle waits for a reviewer.
		to = claim.StatusUnderAppeal
	}

	ref := ""
	if to == claim.StatusApproved {
		ref = commitRef(c)
		snap, err := l.policies.Snapshot(c.CatalogVersion)
		if err != nil {
			return nil, err
		}
		_, err = l.ledger.ReserveAndCommit(ctx, snap, ledgerKey(c), rec.CoverageAmount, ref)
		switch {
		case err == nil:
		case errors.Is(err, benefit.ErrInsufficientBenefit) && rec.Source != claim.SourceManual:
			l.logger.Info("approval refused by benefit ledger",
				"claim_id", c.ID.String(),
				"coverage", rec.CoverageAmount.Amount,
			)
			rec = decision.Exhausted(rec, c.BilledAmount)
			to, ref = claim.StatusDenied, ""
		case errors.Is(err, benefit.ErrInsufficientBenefit):
			return nil, l.reject(ctx, c, to, actor, err, "remaining benefit cannot cover this claim")
		default:
			return nil, err
		}
	}

	next := c.Clone()
	next.Status = to
	next.Decisions = append(next.Decisions, rec)
	if ref != "" {
		next.LedgerRef = ref
	}
	if from == claim.StatusUnderAppeal && to != claim.StatusUnderAppeal && next.Appeal != nil {
		resolved := rec.DecidedAt
		next.Appeal.ResolvedAt = &resolved
		next.Appeal.Outcome = rec.Verdict
	}
	next.Touch()

	if err := l.claims.UpdateClaim(ctx, next, c.Version); err != nil {
		if ref != "" {
			l.releaseCommit(ctx, c, rec, ref)
		}
		return nil, l.conflict(c, to, err)
	}

	l.record(ctx, next, from, to, actor, strings.Join(rec.Reasons, "; "))
	return next, nil
}

func guardVerdict(c *claim.Claim, rec claim.DecisionRecord) (string, error) {
	if !rec.Verdict.Valid() {
		return fmt.Sprintf("unknown verdict %q", rec.Verdict), ErrInvalidTransition
	}
	switch c.Status {
	case claim.StatusPending:
		if rec.Source != claim.SourceEngine {
			return "pending claims are adjudicated by the decision engine", ErrInvalidTransition
		}
	case claim.StatusReviewRequired:
		if rec.Source != claim.SourceManual || rec.Verdict == claim.VerdictReviewRequired {
			return "review_required claims are resolved to approved or denied by a reviewer", ErrManualResolutionRequired
		}
	case claim.StatusUnderAppeal:
		if rec.Source != claim.SourceAppeal {
			return "appealed claims take appeal decisions only", ErrInvalidTransition
		}
		return "", nil
	case claim.StatusVoided:
		return "claim was approved and then voided", ErrAlreadyAdjudicated
	default:
		return fmt.Sprintf("claim is already %s", c.Status), ErrAlreadyAdjudicated
	}
	if !CanTransition(c.Status, rec.Verdict.Status()) {
		return "", ErrInvalidTransition
	}
	return "", nil
}

// releaseCommit undoes a ledger commit whose claim update lost a race,
// unless the winner recorded the same commit.
func (l *Lifecycle) releaseCommit(ctx context.Context, c *claim.Claim, rec claim.DecisionRecord, ref string) {
	ctx = context.WithoutCancel(ctx)
	if cur, err := l.claims.GetClaim(ctx, c.ID); err == nil && cur.LedgerRef == ref {
		return
	}
	if _, err := l.ledger.Reverse(ctx, ledgerKey(c), rec.CoverageAmount, ref); err != nil {
		l.logger.Error("failed to release benefit commit",
			"claim_id", c.ID.String(),
			"reference", ref,
			"error", err,
		)
	}
}

// ──────────────────────────────────────────────────
// Void
// ──────────────────────────────────────────────────

// Void moves an approved claim to voided. The request's step-up proof must
// verify, and the claim's covered amount is reversed in the benefit ledger
// before the status changes. A failure before the reversal leaves the claim
// approved; a failure after it leaves a journaled reversal that the next
// Void call completes.
func (l *Lifecycle) Void(ctx context.Context, req claim.VoidRequest) (*claim.Claim, error) {
	c, err := l.claims.GetClaim(ctx, req.ClaimID)
	if err != nil {
		return nil, err
	}
	actor := req.RequestedBy

	switch {
	case c.Status == claim.StatusVoided:
		return nil, l.reject(ctx, c, claim.StatusVoided, actor, ErrAlreadyVoided, "")
	case c.Status != claim.StatusApproved:
		return nil, l.reject(ctx, c, claim.StatusVoided, actor, ErrClaimNotApproved,
			fmt.Sprintf("claim is %s; only approved claims can be voided", c.Status))
	}

	if c.Void.Active() {
		if done, err := l.resumeVoid(ctx, c, actor); done != nil || err != nil {
			return done, err
		}
	}

	// Claim the single void slot before talking to the verifier so a
	// concurrent request is rejected rather than queued.
	marked := c.Clone()
	marked.Void = &claim.VoidInfo{
		RequestID:   id.NewVoidRequestID(),
		Reason:      req.Reason,
		RequestedBy: req.RequestedBy,
		State:       claim.VoidRequested,
		RequestedAt: time.Now().UTC(),
	}
	if req.StepUpVerification != nil {
		marked.Void.ProofMethod = req.StepUpVerification.Method
	}
	marked.Touch()
	if err := l.claims.UpdateClaim(ctx, marked, c.Version); err != nil {
		if !errors.Is(err, claim.ErrVersionConflict) {
			return nil, err
		}
		cur, gerr := l.claims.GetClaim(ctx, c.ID)
		if gerr == nil && cur.Status == claim.StatusVoided {
			return nil, l.reject(ctx, cur, claim.StatusVoided, actor, ErrAlreadyVoided, "")
		}
		return nil, l.reject(ctx, c, claim.StatusVoided, actor, ErrVoidInProgress, "another void request is being processed")
	}

	if detail, err := l.verify(ctx, marked, req.StepUpVerification); err != nil {
		return nil, l.abandonVoid(ctx, marked, actor, err, detail)
	}

	dec := marked.Decision()
	if dec == nil || marked.LedgerRef == "" {
		return nil, l.abandonVoid(ctx, marked, actor, ErrInvalidTransition, "approved claim has no ledger commit")
	}
	entry, err := l.ledger.Reverse(ctx, ledgerKey(marked), dec.CoverageAmount, marked.LedgerRef)
	if err != nil {
		return nil, l.abandonVoid(ctx, marked, actor, err, "benefit reversal failed")
	}

	return l.finishVoid(ctx, marked, entry, actor)
}

// resumeVoid deals with a void slot left by an earlier request. If that
// request already journaled its reversal only the status write is missing,
// so the void is finished now. A slot older than the void timeout without
// a reversal was abandoned (crash or lost verifier call) and is released to
// the caller by returning nil, nil. Anything else is still in flight.
func (l *Lifecycle) resumeVoid(ctx context.Context, c *claim.Claim, actor string) (*claim.Claim, error) {
	if c.LedgerRef != "" {
		entry, err := l.ledger.Entry(ctx, c.LedgerRef, benefit.EntryReversal)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			l.logger.Warn("completing interrupted void",
				"claim_id", c.ID.String(),
				"request_id", c.Void.RequestID.String(),
				"entry_id", entry.ID.String(),
			)
			return l.finishVoid(ctx, c, entry, c.Void.RequestedBy)
		}
	}

	if age := time.Since(c.Void.RequestedAt); age >= l.voidTimeout {
		l.logger.Warn("taking over stale void request",
			"claim_id", c.ID.String(),
			"request_id", c.Void.RequestID.String(),
			"age", age.String(),
		)
		return nil, nil
	}

	return nil, l.reject(ctx, c, claim.StatusVoided, actor, ErrVoidInProgress,
		fmt.Sprintf("void request %s is still being processed", c.Void.RequestID))
}

// finishVoid writes the voided status for a claim whose reversal entry is
// already journaled. On failure the slot stays requested and the reversal
// stays journaled, so a later Void resumes here.
func (l *Lifecycle) finishVoid(ctx context.Context, marked *claim.Claim, entry *benefit.Entry, actor string) (*claim.Claim, error) {
	final := marked.Clone()
	now := time.Now().UTC()
	final.Status = claim.StatusVoided
	final.Void.State = claim.VoidApproved
	final.Void.ApprovedAt = &now
	final.Void.Reversal = entry.ID.String()
	final.Touch()
	if err := l.claims.UpdateClaim(ctx, final, marked.Version); err != nil {
		l.logger.Error("void reversal applied but claim update failed",
			"claim_id", marked.ID.String(),
			"entry_id", entry.ID.String(),
			"error", err,
		)
		return nil, l.conflict(marked, claim.StatusVoided, err)
	}

	l.record(ctx, final, claim.StatusApproved, claim.StatusVoided, actor, final.Void.Reason)
	return final, nil
}

func (l *Lifecycle) verify(ctx context.Context, c *claim.Claim, proof *claim.StepUpProof) (string, error) {
	if !proof.Present() {
		return "no biometric or OTP proof was supplied", ErrVerificationRequired
	}
	if l.verifier == nil {
		return "no identity verifier is configured", ErrVerificationRequired
	}
	ok, err := l.verifier.Verify(ctx, c.MemberID, *proof)
	if err != nil {
		l.logger.Warn("identity verification failed",
			"claim_id", c.ID.String(),
			"error", err,
		)
		return "identity verifier could not confirm the proof", ErrVerificationRequired
	}
	if !ok {
		return fmt.Sprintf("%s proof was not accepted", proof.Method), ErrVerificationRequired
	}
	return "", nil
}

// abandonVoid releases the void slot and logs the rejected attempt.
func (l *Lifecycle) abandonVoid(ctx context.Context, marked *claim.Claim, actor string, cause error, detail string) error {
	cleared := marked.Clone()
	cleared.Void.State = claim.VoidRejected
	cleared.Touch()
	if err := l.claims.UpdateClaim(context.WithoutCancel(ctx), cleared, marked.Version); err != nil {
		l.logger.Error("failed to release void request",
			"claim_id", marked.ID.String(),
			"error", err,
		)
	}
	return l.reject(ctx, cleared, claim.StatusVoided, actor, cause, detail)
}

// ──────────────────────────────────────────────────
// Appeal
// ──────────────────────────────────────────────────

// OpenAppeal moves a denied claim to under_appeal. A claim can be appealed
// once.
func (l *Lifecycle) OpenAppeal(ctx context.Context, claimID id.ClaimID, evidence claim.Evidence) (*claim.Claim, error) {
	c, err := l.claims.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	actor := evidence.SubmittedBy

	if c.Status != claim.StatusDenied {
		return nil, l.reject(ctx, c, claim.StatusUnderAppeal, actor, ErrClaimNotDenied,
			fmt.Sprintf("claim is %s; only denied claims can be appealed", c.Status))
	}
	if c.Appeal != nil {
		return nil, l.reject(ctx, c, claim.StatusUnderAppeal, actor, ErrAppealExhausted,
			fmt.Sprintf("appeal %s was already decided", c.Appeal.ID))
	}

	next := c.Clone()
	next.Status = claim.StatusUnderAppeal
	next.Appeal = &claim.Appeal{
		ID:       id.NewAppealID(),
		Evidence: evidence,
		OpenedAt: time.Now().UTC(),
	}
	next.Touch()
	if err := l.claims.UpdateClaim(ctx, next, c.Version); err != nil {
		return nil, l.conflict(c, claim.StatusUnderAppeal, err)
	}

	l.record(ctx, next, claim.StatusDenied, claim.StatusUnderAppeal, actor, evidence.Notes)
	return next, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (l *Lifecycle) category(c *claim.Claim) (catalog.BenefitCategory, error) {
	snap, err := l.policies.Snapshot(c.CatalogVersion)
	if err != nil {
		return catalog.BenefitCategory{}, err
	}
	return snap.Category(c.CategoryID)
}

func (l *Lifecycle) conflict(c *claim.Claim, to claim.Status, err error) error {
	if errors.Is(err, claim.ErrVersionConflict) {
		return &TransitionError{ClaimID: c.ID, From: c.Status, To: to, Err: ErrConcurrentModification}
	}
	return err
}

func (l *Lifecycle) record(ctx context.Context, c *claim.Claim, from, to claim.Status, actor, reason string) {
	entry := &claim.AuditEntry{
		ID:      id.NewAuditID(),
		ClaimID: c.ID,
		From:    from,
		To:      to,
		Actor:   actor,
		Reason:  reason,
		At:      time.Now().UTC(),
	}
	l.appendAudit(ctx, entry)
	l.logger.Info("claim transitioned",
		"claim_id", c.ID.String(),
		"from", string(from),
		"to", string(to),
		"actor", actor,
	)
	if l.observer != nil {
		l.observer.Transitioned(ctx, c, entry)
	}
}

// reject logs a refused transition and returns the TransitionError for it.
func (l *Lifecycle) reject(ctx context.Context, c *claim.Claim, to claim.Status, actor string, cause error, detail string) error {
	terr := &TransitionError{ClaimID: c.ID, From: c.Status, To: to, Detail: detail, Err: cause}
	entry := &claim.AuditEntry{
		ID:       id.NewAuditID(),
		ClaimID:  c.ID,
		From:     c.Status,
		To:       to,
		Actor:    actor,
		Reason:   detail,
		Rejected: true,
		Error:    cause.Error(),
		At:       time.Now().UTC(),
	}
	l.appendAudit(ctx, entry)
	l.logger.Warn("claim transition rejected",
		"claim_id", c.ID.String(),
		"from", string(c.Status),
		"to", string(to),
		"actor", actor,
		"error", cause,
	)
	if l.observer != nil {
		l.observer.Rejected(ctx, c, entry)
	}
	return terr
}

func (l *Lifecycle) appendAudit(ctx context.Context, entry *claim.AuditEntry) {
	if err := l.claims.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		l.logger.Warn("audit append failed",
			"claim_id", entry.ClaimID.String(),
			"error", err,
		)
	}
}

func ledgerKey(c *claim.Claim) benefit.Key {
	return benefit.Key{MemberID: c.PoolMemberID, CategoryID: c.CategoryID, PeriodKey: c.PeriodKey}
}

// commitRef names the ledger commit for a transition out of the claim's
// current version. A retry from the same version reuses the commit.
func commitRef(c *claim.Claim) string {
	return fmt.Sprintf("%s@%d", c.ID, c.Version)
}
