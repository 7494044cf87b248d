package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/adjudicator"
	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/decision"
	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/lifecycle"
	"github.com/xraph/adjudicator/member"
	"github.com/xraph/adjudicator/store/memory"
	"github.com/xraph/adjudicator/types"
)

// Scenario is a scripted sequence of claim operations replayed against an
// in-memory engine.
type Scenario struct {
	// Now fixes the engine clock (YYYY-MM-DD). Defaults to the wall clock.
	Now string `yaml:"now"`
	// VerifierToken is the only step-up token the simulated verifier accepts.
	VerifierToken string          `yaml:"verifier_token"`
	Members       []member.Member `yaml:"members"`
	Advisor       Opinion         `yaml:"advisor"`
	Steps         []Step          `yaml:"steps"`
}

// Opinion scripts the advisor. Fail makes every call error.
type Opinion struct {
	Verdict    claim.Verdict `yaml:"verdict"`
	Confidence int           `yaml:"confidence"`
	Reasons    []string      `yaml:"reasons"`
	Fail       bool          `yaml:"fail"`
}

// Step holds exactly one operation.
type Step struct {
	Submit  *SubmitStep  `yaml:"submit"`
	Void    *VoidStep    `yaml:"void"`
	Appeal  *AppealStep  `yaml:"appeal"`
	Resolve *ResolveStep `yaml:"resolve"`
}

// SubmitStep submits a claim. Ref names it for later steps.
type SubmitStep struct {
	Ref      string   `yaml:"ref"`
	Key      string   `yaml:"key"`
	Member   string   `yaml:"member"`
	Provider string   `yaml:"provider"`
	Service  string   `yaml:"service"`
	Amount   string   `yaml:"amount"`
	Currency string   `yaml:"currency"`
	Date     string   `yaml:"date"`
	Advisor  *Opinion `yaml:"advisor"`
}

type VoidStep struct {
	Ref    string            `yaml:"ref"`
	Reason string            `yaml:"reason"`
	By     string            `yaml:"by"`
	Method claim.ProofMethod `yaml:"method"`
	Token  string            `yaml:"token"`
}

type AppealStep struct {
	Ref     string   `yaml:"ref"`
	Notes   string   `yaml:"notes"`
	By      string   `yaml:"by"`
	Advisor *Opinion `yaml:"advisor"`
}

// ResolveStep settles a claim waiting on review or appeal.
type ResolveStep struct {
	Ref      string        `yaml:"ref"`
	Verdict  claim.Verdict `yaml:"verdict"`
	Reviewer string        `yaml:"reviewer"`
	Reason   string        `yaml:"reason"`
}

// LoadScenario parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &s, nil
}

// scriptedAdvisor returns whatever opinion the scenario last set.
type scriptedAdvisor struct {
	mu      sync.Mutex
	opinion Opinion
}

func (a *scriptedAdvisor) set(o Opinion) {
	a.mu.Lock()
	a.opinion = o
	a.mu.Unlock()
}

func (a *scriptedAdvisor) Evaluate(_ context.Context, _ *claim.Claim) (decision.Opinion, error) {
	a.mu.Lock()
	o := a.opinion
	a.mu.Unlock()
	if o.Fail {
		return decision.Opinion{}, errors.New("scripted advisor failure")
	}
	verdict := o.Verdict
	if verdict == "" {
		verdict = claim.VerdictApproved
	}
	return decision.Opinion{Verdict: verdict, Confidence: o.Confidence, Reasons: o.Reasons}, nil
}

// runner replays a scenario and prints one line per step.
type runner struct {
	eng     *adjudicator.Engine
	advisor *scriptedAdvisor
	claims  map[string]id.ClaimID
	members []string
	out     io.Writer
}

// Simulate replays s against a fresh in-memory engine built from the
// catalog snapshot, writing results to out.
func Simulate(ctx context.Context, snap catalog.Snapshot, s *Scenario, out io.Writer, opts ...adjudicator.Option) error {
	cat := catalog.New()
	if _, err := cat.Publish(snap); err != nil {
		return err
	}

	advisor := &scriptedAdvisor{opinion: s.Advisor}
	if advisor.opinion.Confidence == 0 && !advisor.opinion.Fail {
		advisor.opinion.Confidence = 90
	}

	token := s.VerifierToken
	opts = append(opts, adjudicator.WithIdentityVerifier(lifecycle.VerifierFunc(
		func(_ context.Context, _ string, proof claim.StepUpProof) (bool, error) {
			return token != "" && proof.Token == token, nil
		})))

	if s.Now != "" {
		now, err := time.Parse(time.DateOnly, s.Now)
		if err != nil {
			return fmt.Errorf("scenario now: %w", err)
		}
		opts = append(opts, adjudicator.WithClock(func() time.Time { return now }))
	}

	r := &runner{
		advisor: advisor,
		claims:  make(map[string]id.ClaimID),
		out:     out,
	}

	if len(s.Members) > 0 {
		dir, err := member.NewStaticDirectory(s.Members...)
		if err != nil {
			return err
		}
		opts = append(opts, adjudicator.WithDirectory(dir))
		for _, m := range s.Members {
			r.members = append(r.members, m.ID)
		}
	}

	r.eng = adjudicator.New(memory.New(), cat, advisor, opts...)
	if err := r.eng.Start(ctx); err != nil {
		return err
	}
	defer r.eng.Stop()

	for i, step := range s.Steps {
		if err := r.step(ctx, step); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return r.printUsage(ctx)
}

func (r *runner) step(ctx context.Context, st Step) error {
	switch {
	case st.Submit != nil:
		return r.submit(ctx, st.Submit)
	case st.Void != nil:
		return r.void(ctx, st.Void)
	case st.Appeal != nil:
		return r.appeal(ctx, st.Appeal)
	case st.Resolve != nil:
		return r.resolve(ctx, st.Resolve)
	default:
		return errors.New("empty step")
	}
}

func (r *runner) submit(ctx context.Context, st *SubmitStep) error {
	currency := st.Currency
	if currency == "" {
		currency = "usd"
	}
	amount, err := types.ParseMajor(st.Amount, currency)
	if err != nil {
		return err
	}
	date, err := time.Parse(time.DateOnly, st.Date)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if st.Advisor != nil {
		r.advisor.set(*st.Advisor)
	}

	in := adjudicator.ClaimInput{
		MemberID:     st.Member,
		ProviderID:   st.Provider,
		ServiceType:  st.Service,
		BilledAmount: amount,
		ServiceDate:  date,
	}
	key := st.Key
	if key == "" {
		key = adjudicator.IdempotencyKey(in)
	}

	rec, err := r.eng.Submit(ctx, key, in)
	if err != nil {
		r.printf("submit %s: error: %v", st.Ref, err)
		return nil
	}
	if c, err := r.eng.Store().GetClaimByIdempotencyKey(ctx, key); err == nil && st.Ref != "" {
		r.claims[st.Ref] = c.ID
	}
	r.printDecision("submit "+st.Ref, rec)
	return nil
}

func (r *runner) void(ctx context.Context, st *VoidStep) error {
	claimID, err := r.ref(st.Ref)
	if err != nil {
		return err
	}
	req := claim.VoidRequest{ClaimID: claimID, Reason: st.Reason, RequestedBy: st.By}
	if st.Token != "" {
		method := st.Method
		if method == "" {
			method = claim.ProofOTP
		}
		req.StepUpVerification = &claim.StepUpProof{Method: method, Token: st.Token}
	}

	c, err := r.eng.Void(ctx, claimID, req)
	if err != nil {
		r.printf("void %s: rejected: %v", st.Ref, err)
		return nil
	}
	r.printf("void %s: %s", st.Ref, c.Status)
	return nil
}

func (r *runner) appeal(ctx context.Context, st *AppealStep) error {
	claimID, err := r.ref(st.Ref)
	if err != nil {
		return err
	}
	if st.Advisor != nil {
		r.advisor.set(*st.Advisor)
	}
	rec, err := r.eng.Appeal(ctx, claimID, claim.Evidence{Notes: st.Notes, SubmittedBy: st.By})
	if err != nil {
		r.printf("appeal %s: rejected: %v", st.Ref, err)
		return nil
	}
	r.printDecision("appeal "+st.Ref, rec)
	return nil
}

func (r *runner) resolve(ctx context.Context, st *ResolveStep) error {
	claimID, err := r.ref(st.Ref)
	if err != nil {
		return err
	}
	c, err := r.eng.Claim(ctx, claimID)
	if err != nil {
		return err
	}

	res := decision.Resolution{Verdict: st.Verdict, Reviewer: st.Reviewer, Reason: st.Reason}
	var rec *claim.DecisionRecord
	if c.Status == claim.StatusUnderAppeal {
		rec, err = r.eng.ResolveAppeal(ctx, claimID, res)
	} else {
		rec, err = r.eng.ResolveReview(ctx, claimID, res)
	}
	if err != nil {
		r.printf("resolve %s: rejected: %v", st.Ref, err)
		return nil
	}
	r.printDecision("resolve "+st.Ref, rec)
	return nil
}

func (r *runner) ref(name string) (id.ClaimID, error) {
	claimID, ok := r.claims[name]
	if !ok {
		return id.Nil, fmt.Errorf("unknown claim ref %q", name)
	}
	return claimID, nil
}

func (r *runner) printDecision(label string, rec *claim.DecisionRecord) {
	line := fmt.Sprintf("%s: %s coverage=%s patient=%s risk=%d",
		label, rec.Verdict, rec.CoverageAmount, rec.PatientResponsibility, rec.RiskScore)
	if len(rec.Reasons) > 0 {
		line += " reasons=" + strings.Join(rec.Reasons, ",")
	}
	r.printf("%s", line)
}

func (r *runner) printUsage(ctx context.Context) error {
	members := slices.Clone(r.members)
	if len(members) == 0 {
		seen := make(map[string]bool)
		for _, claimID := range r.claims {
			c, err := r.eng.Claim(ctx, claimID)
			if err != nil {
				return err
			}
			if !seen[c.PoolMemberID] {
				seen[c.PoolMemberID] = true
				members = append(members, c.PoolMemberID)
			}
		}
		slices.Sort(members)
	}

	for _, m := range members {
		usage, err := r.eng.BenefitUsage(ctx, m)
		if err != nil {
			return err
		}
		for _, u := range usage {
			r.printf("usage %s %s %s: used=%s remaining=%s", m, u.CategoryID, u.PeriodKey, u.Used, u.Remaining)
		}
	}
	return nil
}

func (r *runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}
