package adjudicator_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/adjudicator"
	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/decision"
	"github.com/xraph/adjudicator/lifecycle"
	"github.com/xraph/adjudicator/member"
	"github.com/xraph/adjudicator/store/memory"
	"github.com/xraph/adjudicator/types"
)

const validToken = "otp-123456"

var (
	today     = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	dayOffset atomic.Int64
)

// serviceDate hands out a distinct day per call so risk heuristics stay
// quiet unless a test wants them.
func serviceDate() time.Time {
	return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(dayOffset.Add(1)%300))
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := catalog.New()
	_, err := c.Publish(catalog.Snapshot{
		Currency: "usd",
		Categories: map[string]catalog.BenefitCategory{
			"outpatient": {
				ID:              "outpatient",
				Name:            "Outpatient",
				CoveragePercent: 80,
				PeriodicLimit:   types.USD(1000000),
				PeriodStart:     start,
				ResetRule:       catalog.ResetAnnual,
			},
			"inpatient": {
				ID:              "inpatient",
				Name:            "Inpatient",
				CoveragePercent: 100,
				PeriodicLimit:   types.USD(1000000),
				PeriodStart:     start,
				ResetRule:       catalog.ResetAnnual,
			},
		},
		Services: map[string]string{
			"consultation": "outpatient",
			"admission":    "inpatient",
		},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return c
}

// scriptedAdvisor approves with confidence 92 unless told otherwise.
type scriptedAdvisor struct {
	mu      sync.Mutex
	opinion decision.Opinion
	fail    error
	calls   int
}

func (a *scriptedAdvisor) Evaluate(_ context.Context, c *claim.Claim) (decision.Opinion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.fail != nil {
		return decision.Opinion{}, a.fail
	}
	if a.opinion.Verdict == "" {
		return decision.Opinion{Verdict: claim.VerdictApproved, Confidence: 92}, nil
	}
	return a.opinion, nil
}

func (a *scriptedAdvisor) set(o decision.Opinion, fail error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opinion = o
	a.fail = fail
}

type fixture struct {
	engine  *adjudicator.Engine
	store   *memory.Store
	advisor *scriptedAdvisor
}

func newFixture(t *testing.T, opts ...adjudicator.Option) *fixture {
	t.Helper()
	s := memory.New()
	adv := &scriptedAdvisor{}
	verifier := lifecycle.VerifierFunc(func(_ context.Context, _ string, p claim.StepUpProof) (bool, error) {
		return p.Token == validToken, nil
	})
	base := []adjudicator.Option{
		adjudicator.WithIdentityVerifier(verifier),
		adjudicator.WithAdvisorRetries(1),
		adjudicator.WithClock(func() time.Time { return today }),
	}
	eng := adjudicator.New(s, testCatalog(t), adv, append(base, opts...)...)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop() })
	return &fixture{engine: eng, store: s, advisor: adv}
}

func input(memberID, service string, billed int64) adjudicator.ClaimInput {
	return adjudicator.ClaimInput{
		MemberID:     memberID,
		ProviderID:   fmt.Sprintf("prov-%d", dayOffset.Load()),
		ServiceType:  service,
		BilledAmount: types.USD(billed),
		ServiceDate:  serviceDate(),
	}
}

func (f *fixture) used(t *testing.T, memberID, categoryID string) types.Money {
	t.Helper()
	rows, err := f.engine.BenefitUsage(context.Background(), memberID)
	if err != nil {
		t.Fatalf("BenefitUsage: %v", err)
	}
	for _, r := range rows {
		if r.CategoryID == categoryID {
			return r.Used
		}
	}
	t.Fatalf("no usage row for %s", categoryID)
	return types.Money{}
}

func (f *fixture) submit(t *testing.T, in adjudicator.ClaimInput) *claim.DecisionRecord {
	t.Helper()
	rec, err := f.engine.Submit(context.Background(), "", in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return rec
}

func claimFor(t *testing.T, f *fixture, in adjudicator.ClaimInput) *claim.Claim {
	t.Helper()
	c, err := f.store.GetClaimByIdempotencyKey(context.Background(), adjudicator.IdempotencyKey(in))
	if err != nil {
		t.Fatalf("GetClaimByIdempotencyKey: %v", err)
	}
	return c
}

func TestSubmitApprovesAndSplitsCoverage(t *testing.T) {
	f := newFixture(t)

	rec := f.submit(t, input("m1", "consultation", 100000))

	if rec.Verdict != claim.VerdictApproved {
		t.Fatalf("verdict: got %s, reasons %v", rec.Verdict, rec.Reasons)
	}
	if rec.CoverageAmount != types.USD(80000) || rec.PatientResponsibility != types.USD(20000) {
		t.Errorf("split: got %s / %s", rec.CoverageAmount, rec.PatientResponsibility)
	}
	if rec.RiskScore >= 70 {
		t.Errorf("unexpected risk score %d", rec.RiskScore)
	}
	if got := f.used(t, "m1", "outpatient"); got != types.USD(80000) {
		t.Errorf("usage: got %s, want $800.00", got)
	}
}

func TestSubmitDeniesWhenBenefitExhausted(t *testing.T) {
	f := newFixture(t)

	// 11,250.00 at 80% covers 9,000.00.
	if rec := f.submit(t, input("m1", "consultation", 1125000)); rec.Verdict != claim.VerdictApproved {
		t.Fatalf("seed claim: got %s", rec.Verdict)
	}

	rec := f.submit(t, input("m1", "consultation", 200000))

	if rec.Verdict != claim.VerdictDenied {
		t.Fatalf("verdict: got %s", rec.Verdict)
	}
	if len(rec.Reasons) != 1 || rec.Reasons[0] != decision.ReasonBenefitExhausted {
		t.Errorf("reasons: got %v", rec.Reasons)
	}
	if !rec.CoverageAmount.IsZero() || rec.PatientResponsibility != types.USD(200000) {
		t.Errorf("denied split: got %s / %s", rec.CoverageAmount, rec.PatientResponsibility)
	}
	if got := f.used(t, "m1", "outpatient"); got != types.USD(900000) {
		t.Errorf("usage: got %s, want $9,000.00", got)
	}
}

func TestSubmitNormalizesCurrencyCase(t *testing.T) {
	f := newFixture(t)

	if rec := f.submit(t, input("m1", "consultation", 1000)); rec.Verdict != claim.VerdictApproved {
		t.Fatalf("seed claim: got %s", rec.Verdict)
	}

	upper := input("m1", "consultation", 1000)
	upper.BilledAmount = types.Money{Amount: 1000, Currency: "USD"}
	rec := f.submit(t, upper)

	if rec.Verdict != claim.VerdictApproved {
		t.Fatalf("verdict: got %s, reasons %v", rec.Verdict, rec.Reasons)
	}
	if rec.CoverageAmount != types.USD(800) || rec.PatientResponsibility != types.USD(200) {
		t.Errorf("split: got %s / %s", rec.CoverageAmount, rec.PatientResponsibility)
	}
	if got := f.used(t, "m1", "outpatient"); got != types.USD(1600) {
		t.Errorf("usage: got %s, want $16.00", got)
	}

	// The same submission in lower case is a retry, not a new claim.
	lower := upper
	lower.BilledAmount = types.USD(1000)
	again := f.submit(t, lower)
	if again.ID != rec.ID {
		t.Errorf("currency case changed the idempotency key: %s vs %s", again.ID, rec.ID)
	}
}

func TestSubmitDeniesAmountsBeyondAnyLimit(t *testing.T) {
	f := newFixture(t)

	if rec := f.submit(t, input("m1", "admission", 1000)); rec.Verdict != claim.VerdictApproved {
		t.Fatalf("seed claim: got %s", rec.Verdict)
	}

	rec := f.submit(t, input("m1", "admission", math.MaxInt64))

	if rec.Verdict != claim.VerdictDenied {
		t.Fatalf("verdict: got %s", rec.Verdict)
	}
	if len(rec.Reasons) != 1 || rec.Reasons[0] != decision.ReasonBenefitExhausted {
		t.Errorf("reasons: got %v", rec.Reasons)
	}
	if got := f.used(t, "m1", "inpatient"); got != types.USD(1000) {
		t.Errorf("usage: got %s, want $10.00", got)
	}
}

func TestConcurrentSubmissionsNeverExceedLimit(t *testing.T) {
	f := newFixture(t)

	var (
		wg      sync.WaitGroup
		results = make([]*claim.DecisionRecord, 2)
		errs    = make([]error, 2)
		inputs  = []adjudicator.ClaimInput{
			input("m1", "admission", 600000),
			input("m1", "admission", 600000),
		}
	)
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.Submit(context.Background(), "", inputs[i])
		}(i)
	}
	wg.Wait()

	approved, denied := 0, 0
	for i, rec := range results {
		if errs[i] != nil {
			t.Fatalf("submission %d: %v", i, errs[i])
		}
		switch rec.Verdict {
		case claim.VerdictApproved:
			approved++
		case claim.VerdictDenied:
			denied++
			if rec.Reasons[0] != decision.ReasonBenefitExhausted {
				t.Errorf("denial reason: got %v", rec.Reasons)
			}
		}
	}
	if approved != 1 || denied != 1 {
		t.Fatalf("got %d approved and %d denied, want one of each", approved, denied)
	}
	if got := f.used(t, "m1", "inpatient"); got != types.USD(600000) {
		t.Errorf("usage: got %s, want $6,000.00", got)
	}
}

func TestManyConcurrentSubmissionsStayWithinLimit(t *testing.T) {
	f := newFixture(t)

	const n = 40
	var wg sync.WaitGroup
	var approvedTotal atomic.Int64
	for i := 0; i < n; i++ {
		in := input("m1", "admission", 70000)
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.engine.Submit(context.Background(), "", in)
			if err != nil {
				t.Error(err)
				return
			}
			if rec.Verdict == claim.VerdictApproved {
				approvedTotal.Add(rec.CoverageAmount.Amount)
			}
		}()
	}
	wg.Wait()

	used := f.used(t, "m1", "inpatient")
	if used.Amount > 1000000 {
		t.Fatalf("usage %s exceeds the limit", used)
	}
	if used.Amount != approvedTotal.Load() {
		t.Errorf("usage %s does not match approved coverage %d", used, approvedTotal.Load())
	}
	// 14 × 700.00 = 9,800.00 fits; a 15th would not.
	if used != types.USD(980000) {
		t.Errorf("usage: got %s, want $9,800.00", used)
	}
}

func TestSubmitIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := input("m1", "consultation", 100000)

	first, err := f.engine.Submit(ctx, "key-1", in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.engine.Submit(ctx, "key-1", in)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID || first.Verdict != second.Verdict || first.CoverageAmount != second.CoverageAmount {
		t.Errorf("retried submission returned a different decision: %+v vs %+v", first, second)
	}
	if got := len(f.store.Entries()); got != 1 {
		t.Errorf("ledger entries: got %d, want 1", got)
	}
	if f.advisor.calls != 1 {
		t.Errorf("advisor calls: got %d, want 1", f.advisor.calls)
	}

	changed := in
	changed.BilledAmount = types.USD(100001)
	if _, err := f.engine.Submit(ctx, "key-1", changed); !errors.Is(err, adjudicator.ErrIdempotencyMismatch) {
		t.Errorf("expected ErrIdempotencyMismatch, got %v", err)
	}
}

func TestConcurrentRetriesCommitOnce(t *testing.T) {
	f := newFixture(t)
	in := input("m1", "consultation", 100000)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := f.engine.Submit(context.Background(), "same-key", in)
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = rec.ID.String()
		}(i)
	}
	wg.Wait()

	for _, got := range ids[1:] {
		if got != ids[0] {
			t.Fatalf("retries saw different decisions: %v", ids)
		}
	}
	if got := f.used(t, "m1", "outpatient"); got != types.USD(80000) {
		t.Errorf("usage: got %s, want $800.00", got)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	valid := input("m1", "consultation", 1000)
	tests := []struct {
		name    string
		mutate  func(*adjudicator.ClaimInput)
		wantErr error
	}{
		{"missing member", func(in *adjudicator.ClaimInput) { in.MemberID = "" }, adjudicator.ErrInvalidInput},
		{"zero amount", func(in *adjudicator.ClaimInput) { in.BilledAmount = types.USD(0) }, adjudicator.ErrInvalidInput},
		{"no date", func(in *adjudicator.ClaimInput) { in.ServiceDate = time.Time{} }, adjudicator.ErrInvalidInput},
		{"unknown service", func(in *adjudicator.ClaimInput) { in.ServiceType = "surgery" }, adjudicator.ErrUnknownServiceType},
		{"wrong currency", func(in *adjudicator.ClaimInput) { in.BilledAmount = types.EUR(1000) }, adjudicator.ErrCurrencyMismatch},
		{"before coverage", func(in *adjudicator.ClaimInput) {
			in.ServiceDate = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
		}, adjudicator.ErrOutsideCoverage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			if _, err := f.engine.Submit(context.Background(), "", in); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAdvisorUnavailableLeavesClaimPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := input("m1", "consultation", 100000)

	f.advisor.set(decision.Opinion{}, errors.New("connection refused"))
	_, err := f.engine.Submit(ctx, "", in)
	if !errors.Is(err, adjudicator.ErrAdvisorUnavailable) {
		t.Fatalf("expected ErrAdvisorUnavailable, got %v", err)
	}
	if !adjudicator.IsRetryable(err) {
		t.Error("advisor failure should be retryable")
	}

	c := claimFor(t, f, in)
	if c.Status != claim.StatusPending || c.Decision() != nil {
		t.Fatalf("claim after advisor failure: status %s", c.Status)
	}
	if got := f.used(t, "m1", "outpatient"); !got.IsZero() {
		t.Errorf("usage changed to %s", got)
	}

	f.advisor.set(decision.Opinion{}, nil)
	rec, err := f.engine.Submit(ctx, "", in)
	if err != nil {
		t.Fatalf("resumed Submit: %v", err)
	}
	if rec.Verdict != claim.VerdictApproved {
		t.Fatalf("resumed verdict: got %s", rec.Verdict)
	}
	if resumed := claimFor(t, f, in); resumed.ID != c.ID {
		t.Errorf("retry created a new claim %s, want %s", resumed.ID, c.ID)
	}
}

func TestReviewResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.advisor.set(decision.Opinion{Verdict: claim.VerdictApproved, Confidence: 60}, nil)
	in := input("m1", "consultation", 100000)
	rec := f.submit(t, in)
	if rec.Verdict != claim.VerdictReviewRequired {
		t.Fatalf("verdict: got %s", rec.Verdict)
	}
	if got := f.used(t, "m1", "outpatient"); !got.IsZero() {
		t.Errorf("review committed usage %s", got)
	}

	c := claimFor(t, f, in)
	resolved, err := f.engine.ResolveReview(ctx, c.ID, decision.Resolution{
		Verdict:  claim.VerdictApproved,
		Reviewer: "dr.ochieng",
	})
	if err != nil {
		t.Fatalf("ResolveReview: %v", err)
	}
	if resolved.Source != claim.SourceManual || resolved.DecidedBy != "dr.ochieng" {
		t.Errorf("manual record: %+v", resolved)
	}
	if got := f.used(t, "m1", "outpatient"); got != types.USD(80000) {
		t.Errorf("usage: got %s, want $800.00", got)
	}

	// The first decision is what idempotent retries keep seeing.
	again := f.submit(t, in)
	if again.Verdict != claim.VerdictReviewRequired {
		t.Errorf("retry returned %s, want the original review_required", again.Verdict)
	}

	if _, err := f.engine.ResolveReview(ctx, c.ID, decision.Resolution{Verdict: claim.VerdictDenied, Reviewer: "x", Reason: "late"}); !errors.Is(err, adjudicator.ErrNotAwaitingResolution) {
		t.Errorf("expected ErrNotAwaitingResolution, got %v", err)
	}
}

func TestVoidRestoresUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("m1", "consultation", 100000)
	if rec := f.submit(t, in); rec.CoverageAmount != types.USD(80000) {
		t.Fatalf("coverage: got %s", rec.CoverageAmount)
	}
	c := claimFor(t, f, in)

	_, err := f.engine.Void(ctx, c.ID, claim.VoidRequest{Reason: "duplicate billing", RequestedBy: "m1"})
	if !errors.Is(err, adjudicator.ErrVerificationRequired) {
		t.Fatalf("expected ErrVerificationRequired, got %v", err)
	}
	if got := f.used(t, "m1", "outpatient"); got != types.USD(80000) {
		t.Errorf("unverified void changed usage to %s", got)
	}
	if cur, _ := f.engine.Claim(ctx, c.ID); cur.Status != claim.StatusApproved {
		t.Errorf("unverified void changed status to %s", cur.Status)
	}

	voided, err := f.engine.Void(ctx, c.ID, claim.VoidRequest{
		Reason:             "duplicate billing",
		RequestedBy:        "m1",
		StepUpVerification: &claim.StepUpProof{Method: claim.ProofOTP, Token: validToken},
	})
	if err != nil {
		t.Fatalf("Void: %v", err)
	}
	if voided.Status != claim.StatusVoided {
		t.Errorf("status: got %s", voided.Status)
	}
	if got := f.used(t, "m1", "outpatient"); !got.IsZero() {
		t.Errorf("usage after void: got %s, want zero", got)
	}

	_, err = f.engine.Void(ctx, c.ID, claim.VoidRequest{
		StepUpVerification: &claim.StepUpProof{Method: claim.ProofOTP, Token: validToken},
	})
	if !errors.Is(err, adjudicator.ErrAlreadyVoided) {
		t.Errorf("second void: expected ErrAlreadyVoided, got %v", err)
	}
	if !adjudicator.IsGuardViolation(err) {
		t.Error("second void should be a guard violation")
	}

	trail, err := f.engine.AuditTrail(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	var transitions, rejected int
	for _, e := range trail {
		if e.Rejected {
			rejected++
		} else {
			transitions++
		}
	}
	if transitions != 2 || rejected != 2 {
		t.Errorf("audit trail: %d transitions and %d rejections, want 2 and 2", transitions, rejected)
	}
}

func TestAppealReadjudicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.advisor.set(decision.Opinion{Verdict: claim.VerdictDenied, Confidence: 88, Reasons: []string{"not medically necessary"}}, nil)
	in := input("m1", "consultation", 100000)
	if rec := f.submit(t, in); rec.Verdict != claim.VerdictDenied {
		t.Fatalf("verdict: got %s", rec.Verdict)
	}
	c := claimFor(t, f, in)

	f.advisor.set(decision.Opinion{}, nil)
	rec, err := f.engine.Appeal(ctx, c.ID, claim.Evidence{Notes: "referral letter attached", SubmittedBy: "m1"})
	if err != nil {
		t.Fatalf("Appeal: %v", err)
	}
	if rec.Verdict != claim.VerdictApproved || rec.Source != claim.SourceAppeal {
		t.Fatalf("appeal decision: %+v", rec)
	}
	if got := f.used(t, "m1", "outpatient"); got != types.USD(80000) {
		t.Errorf("usage: got %s, want $800.00", got)
	}

	cur, _ := f.engine.Claim(ctx, c.ID)
	if cur.Status != claim.StatusApproved || cur.Appeal == nil || cur.Appeal.Outcome != claim.VerdictApproved {
		t.Errorf("claim after appeal: status %s appeal %+v", cur.Status, cur.Appeal)
	}

	if _, err := f.engine.Appeal(ctx, c.ID, claim.Evidence{}); !errors.Is(err, adjudicator.ErrClaimNotDenied) {
		t.Errorf("expected ErrClaimNotDenied, got %v", err)
	}
}

func TestDeniedAndVoidedClaimsNeverReturnToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proof := &claim.StepUpProof{Method: claim.ProofBiometric, Token: validToken}

	f.advisor.set(decision.Opinion{Verdict: claim.VerdictDenied, Confidence: 90, Reasons: []string{"excluded service"}}, nil)
	deniedIn := input("m1", "consultation", 5000)
	f.submit(t, deniedIn)
	denied := claimFor(t, f, deniedIn)

	f.advisor.set(decision.Opinion{}, nil)
	voidedIn := input("m1", "consultation", 5000)
	f.submit(t, voidedIn)
	voided := claimFor(t, f, voidedIn)
	if _, err := f.engine.Void(ctx, voided.ID, claim.VoidRequest{StepUpVerification: proof}); err != nil {
		t.Fatal(err)
	}

	attempts := []struct {
		name string
		run  func() error
	}{
		{"void denied", func() error {
			_, err := f.engine.Void(ctx, denied.ID, claim.VoidRequest{StepUpVerification: proof})
			return err
		}},
		{"resolve denied", func() error {
			_, err := f.engine.ResolveReview(ctx, denied.ID, decision.Resolution{Verdict: claim.VerdictApproved, Reviewer: "r"})
			return err
		}},
		{"resubmit denied", func() error {
			_, err := f.engine.Submit(ctx, "", deniedIn)
			return err
		}},
		{"appeal voided", func() error {
			_, err := f.engine.Appeal(ctx, voided.ID, claim.Evidence{})
			return err
		}},
		{"resolve voided", func() error {
			_, err := f.engine.ResolveAppeal(ctx, voided.ID, decision.Resolution{Verdict: claim.VerdictApproved, Reviewer: "r"})
			return err
		}},
	}
	for _, a := range attempts {
		_ = a.run()
	}

	for _, tc := range []struct {
		id   adjudicator.ID
		want claim.Status
	}{
		{denied.ID, claim.StatusDenied},
		{voided.ID, claim.StatusVoided},
	} {
		cur, err := f.engine.Claim(ctx, tc.id)
		if err != nil {
			t.Fatal(err)
		}
		if cur.Status != tc.want {
			t.Errorf("claim %s: got %s, want %s", tc.id, cur.Status, tc.want)
		}
	}
}

func TestDependentsShareFamilyPool(t *testing.T) {
	dir, err := member.NewStaticDirectory(member.Member{
		ID:     "mem-100",
		Active: true,
		Dependents: []member.Member{
			{ID: "mem-101", Relationship: member.RelationshipChild, Active: true},
			{ID: "mem-102", Relationship: member.RelationshipSpouse},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, adjudicator.WithDirectory(dir))

	f.submit(t, input("mem-100", "consultation", 100000))
	f.submit(t, input("mem-101", "consultation", 50000))

	for _, m := range []string{"mem-100", "mem-101"} {
		if got := f.used(t, m, "outpatient"); got != types.USD(120000) {
			t.Errorf("%s sees usage %s, want $1,200.00", m, got)
		}
	}

	_, err = f.engine.Submit(context.Background(), "", input("mem-102", "consultation", 1000))
	if !errors.Is(err, adjudicator.ErrMemberInactive) {
		t.Errorf("expected ErrMemberInactive, got %v", err)
	}
	_, err = f.engine.Submit(context.Background(), "", input("mem-404", "consultation", 1000))
	if !adjudicator.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

type hookRecorder struct {
	mu        sync.Mutex
	verdicts  []claim.Verdict
	exhausted int
	voided    int
}

func (h *hookRecorder) Name() string { return "hook-recorder" }

func (h *hookRecorder) OnClaimAdjudicated(_ context.Context, _ *claim.Claim, rec *claim.DecisionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.verdicts = append(h.verdicts, rec.Verdict)
	return nil
}

func (h *hookRecorder) OnBenefitExhausted(context.Context, *claim.Claim) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exhausted++
	return nil
}

func (h *hookRecorder) OnClaimVoided(context.Context, *claim.Claim) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.voided++
	return nil
}

func TestPluginsObserveDecisions(t *testing.T) {
	hooks := &hookRecorder{}
	f := newFixture(t, adjudicator.WithPlugin(hooks))

	f.submit(t, input("m1", "admission", 900000))
	f.submit(t, input("m1", "admission", 200000))

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.verdicts) != 2 || hooks.verdicts[0] != claim.VerdictApproved || hooks.verdicts[1] != claim.VerdictDenied {
		t.Errorf("verdicts: got %v", hooks.verdicts)
	}
	if hooks.exhausted != 1 {
		t.Errorf("exhausted: got %d, want 1", hooks.exhausted)
	}
}
