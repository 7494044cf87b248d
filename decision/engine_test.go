package decision

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/risk"
	"github.com/xraph/adjudicator/types"
)

func category(pct int, limit int64) catalog.BenefitCategory {
	return catalog.BenefitCategory{
		ID:              "outpatient",
		CoveragePercent: pct,
		PeriodicLimit:   types.USD(limit),
		PeriodStart:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ResetRule:       catalog.ResetAnnual,
	}
}

func testClaim(billed int64) *claim.Claim {
	return &claim.Claim{
		ID:             id.NewClaimID(),
		MemberID:       "m1",
		ProviderID:     "p1",
		ServiceType:    "consultation",
		CategoryID:     "outpatient",
		CatalogVersion: 3,
		BilledAmount:   types.USD(billed),
		Status:         claim.StatusPending,
	}
}

func TestAdjudicate(t *testing.T) {
	approve92 := Opinion{Verdict: claim.VerdictApproved, Confidence: 92, Reasons: []string{"medically necessary"}}

	tests := []struct {
		name     string
		billed   int64
		cat      catalog.BenefitCategory
		usage    int64
		risk     risk.Assessment
		opinion  Opinion
		verdict  claim.Verdict
		reasons  []string
		coverage int64
		patient  int64
	}{
		{
			name:   "benefit exhausted",
			billed: 2000, cat: category(80, 10000), usage: 9000,
			risk: risk.Assessment{Score: 90, Reasons: []string{"dup"}}, opinion: approve92,
			verdict: claim.VerdictDenied, reasons: []string{ReasonBenefitExhausted},
			coverage: 0, patient: 2000,
		},
		{
			name:   "amount too large to add to usage",
			billed: math.MaxInt64, cat: category(100, 1000000), usage: 1000,
			risk: risk.Assessment{Score: 10}, opinion: approve92,
			verdict: claim.VerdictDenied, reasons: []string{ReasonBenefitExhausted},
			coverage: 0, patient: math.MaxInt64,
		},
		{
			name:   "exactly at limit approves",
			billed: 1250, cat: category(80, 10000), usage: 9000,
			risk: risk.Assessment{Score: 10}, opinion: approve92,
			verdict: claim.VerdictApproved, reasons: []string{"medically necessary"},
			coverage: 1000, patient: 250,
		},
		{
			name:   "clean approval",
			billed: 1000, cat: category(80, 10000), usage: 0,
			risk: risk.Assessment{Score: 10}, opinion: approve92,
			verdict: claim.VerdictApproved, reasons: []string{"medically necessary"},
			coverage: 800, patient: 200,
		},
		{
			name:   "high risk overrides approval",
			billed: 1000, cat: category(80, 10000),
			risk:    risk.Assessment{Score: 70, Flags: []risk.Flag{risk.FlagDuplicate}, Reasons: []string{"same-day duplicate"}},
			opinion: approve92,
			verdict: claim.VerdictReviewRequired,
			reasons: []string{"risk score 70 at or above review threshold 70: same-day duplicate", "medically necessary"},
			coverage: 800, patient: 200,
		},
		{
			name:   "high risk overrides denial",
			billed: 1000, cat: category(80, 10000),
			risk:    risk.Assessment{Score: 85},
			opinion: Opinion{Verdict: claim.VerdictDenied, Confidence: 99, Reasons: []string{"not covered"}},
			verdict: claim.VerdictReviewRequired,
			reasons: []string{"risk score 85 at or above review threshold 70", "not covered"},
			coverage: 800, patient: 200,
		},
		{
			name:   "low confidence approval",
			billed: 1000, cat: category(80, 10000),
			risk:    risk.Assessment{Score: 20},
			opinion: Opinion{Verdict: claim.VerdictApproved, Confidence: 74, Reasons: []string{"borderline"}},
			verdict: claim.VerdictReviewRequired,
			reasons: []string{"advisor confidence 74 below auto-approval threshold 75", "borderline"},
			coverage: 800, patient: 200,
		},
		{
			name:   "advisor denial",
			billed: 1000, cat: category(80, 10000),
			risk:    risk.Assessment{Score: 0},
			opinion: Opinion{Verdict: claim.VerdictDenied, Confidence: 40, Reasons: []string{"experimental procedure"}},
			verdict: claim.VerdictDenied, reasons: []string{"experimental procedure"},
			coverage: 0, patient: 1000,
		},
		{
			name:   "advisor denial without reasons",
			billed: 1000, cat: category(80, 10000),
			opinion: Opinion{Verdict: claim.VerdictDenied, Confidence: 80},
			verdict: claim.VerdictDenied, reasons: []string{"denied by clinical advisor"},
			coverage: 0, patient: 1000,
		},
		{
			name:   "advisor review without reasons",
			billed: 1000, cat: category(80, 10000),
			opinion: Opinion{Verdict: claim.VerdictReviewRequired, Confidence: 80},
			verdict: claim.VerdictReviewRequired, reasons: []string{"clinical advisor requested manual review"},
			coverage: 800, patient: 200,
		},
		{
			name:   "half cent rounds up",
			billed: 1001, cat: category(50, 10000),
			opinion: approve92,
			verdict: claim.VerdictApproved, reasons: []string{"medically necessary"},
			coverage: 501, patient: 500,
		},
	}

	e := NewEngine(Thresholds{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClaim(tt.billed)
			rec, err := e.Adjudicate(Input{
				Claim:    c,
				Category: tt.cat,
				Usage:    types.USD(tt.usage),
				Risk:     tt.risk,
				Opinion:  tt.opinion,
			})
			if err != nil {
				t.Fatalf("Adjudicate: %v", err)
			}
			if rec.Verdict != tt.verdict {
				t.Errorf("Verdict: got %s, want %s", rec.Verdict, tt.verdict)
			}
			if !reflect.DeepEqual(rec.Reasons, tt.reasons) {
				t.Errorf("Reasons: got %q, want %q", rec.Reasons, tt.reasons)
			}
			if rec.CoverageAmount != types.USD(tt.coverage) {
				t.Errorf("Coverage: got %v, want %d", rec.CoverageAmount, tt.coverage)
			}
			if rec.PatientResponsibility != types.USD(tt.patient) {
				t.Errorf("Patient: got %v, want %d", rec.PatientResponsibility, tt.patient)
			}
			if rec.CoverageAmount.Add(rec.PatientResponsibility) != c.BilledAmount {
				t.Error("coverage and patient responsibility do not sum to billed")
			}
			if rec.CatalogVersion != 3 || rec.Source != claim.SourceEngine || rec.ID.IsNil() {
				t.Errorf("record metadata: %+v", rec)
			}
		})
	}
}

func TestAdjudicateInvalidOpinion(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	_, err := e.Adjudicate(Input{
		Claim:    testClaim(1000),
		Category: category(80, 10000),
		Opinion:  Opinion{Verdict: "maybe", Confidence: 50},
	})
	if !errors.Is(err, ErrAdvisorUnavailable) {
		t.Fatalf("expected ErrAdvisorUnavailable, got %v", err)
	}
}

func TestCustomThresholds(t *testing.T) {
	e := NewEngine(Thresholds{HighRisk: 50, AutoApprovalConfidence: 90})
	rec, err := e.Adjudicate(Input{
		Claim:    testClaim(1000),
		Category: category(80, 10000),
		Risk:     risk.Assessment{Score: 10},
		Opinion:  Opinion{Verdict: claim.VerdictApproved, Confidence: 85},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Verdict != claim.VerdictReviewRequired {
		t.Errorf("expected review below custom confidence threshold, got %s", rec.Verdict)
	}

	rec, _ = e.Adjudicate(Input{
		Claim:    testClaim(1000),
		Category: category(80, 10000),
		Risk:     risk.Assessment{Score: 55},
		Opinion:  Opinion{Verdict: claim.VerdictApproved, Confidence: 95},
	})
	if rec.Verdict != claim.VerdictReviewRequired {
		t.Errorf("expected review above custom risk threshold, got %s", rec.Verdict)
	}
}

func TestResolve(t *testing.T) {
	c := testClaim(1000)
	c.Decisions = []claim.DecisionRecord{{RiskScore: 72, RiskFlags: []string{"duplicate"}}}
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	rec, err := Resolve(c, category(80, 10000), Resolution{Verdict: claim.VerdictApproved, Reviewer: "rev-1"}, claim.SourceManual, at)
	if err != nil {
		t.Fatalf("Resolve approve: %v", err)
	}
	if rec.CoverageAmount != types.USD(800) || rec.PatientResponsibility != types.USD(200) {
		t.Errorf("approve split: %v / %v", rec.CoverageAmount, rec.PatientResponsibility)
	}
	if rec.RiskScore != 72 || rec.DecidedBy != "rev-1" || !rec.DecidedAt.Equal(at) {
		t.Errorf("record: %+v", rec)
	}

	if _, err := Resolve(c, category(80, 10000), Resolution{Verdict: claim.VerdictDenied}, claim.SourceManual, at); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("expected ErrReasonRequired, got %v", err)
	}
	if _, err := Resolve(c, category(80, 10000), Resolution{Verdict: claim.VerdictReviewRequired, Reason: "x"}, claim.SourceManual, at); err == nil {
		t.Error("expected error for review_required resolution")
	}

	rec, err = Resolve(c, category(80, 10000), Resolution{Verdict: claim.VerdictDenied, Reason: "not medically necessary"}, claim.SourceAppeal, at)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.CoverageAmount.IsZero() || rec.PatientResponsibility != types.USD(1000) || rec.Source != claim.SourceAppeal {
		t.Errorf("deny record: %+v", rec)
	}
}

func TestRetryingAdvisor(t *testing.T) {
	t.Run("recovers after transient failures", func(t *testing.T) {
		var calls atomic.Int32
		a := NewRetryingAdvisor(AdvisorFunc(func(context.Context, *claim.Claim) (Opinion, error) {
			if calls.Add(1) < 3 {
				return Opinion{}, errors.New("connection reset")
			}
			return Opinion{Verdict: claim.VerdictApproved, Confidence: 90}, nil
		}), WithMaxTries(3), WithBackoff(time.Millisecond, 2*time.Millisecond))

		op, err := a.Evaluate(context.Background(), testClaim(100))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if op.Confidence != 90 || calls.Load() != 3 {
			t.Errorf("opinion %+v after %d calls", op, calls.Load())
		}
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		var calls atomic.Int32
		a := NewRetryingAdvisor(AdvisorFunc(func(context.Context, *claim.Claim) (Opinion, error) {
			calls.Add(1)
			return Opinion{}, errors.New("503")
		}), WithMaxTries(2), WithBackoff(time.Millisecond, time.Millisecond))

		_, err := a.Evaluate(context.Background(), testClaim(100))
		if !errors.Is(err, ErrAdvisorUnavailable) {
			t.Fatalf("expected ErrAdvisorUnavailable, got %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("calls: got %d, want 2", calls.Load())
		}
	})

	t.Run("attempt timeout", func(t *testing.T) {
		a := NewRetryingAdvisor(AdvisorFunc(func(ctx context.Context, _ *claim.Claim) (Opinion, error) {
			<-ctx.Done()
			return Opinion{}, ctx.Err()
		}), WithMaxTries(1), WithAttemptTimeout(10*time.Millisecond))

		start := time.Now()
		_, err := a.Evaluate(context.Background(), testClaim(100))
		if !errors.Is(err, ErrAdvisorUnavailable) {
			t.Fatalf("expected ErrAdvisorUnavailable, got %v", err)
		}
		if time.Since(start) > time.Second {
			t.Error("attempt timeout not applied")
		}
	})

	t.Run("malformed opinion is not retried", func(t *testing.T) {
		var calls atomic.Int32
		a := NewRetryingAdvisor(AdvisorFunc(func(context.Context, *claim.Claim) (Opinion, error) {
			calls.Add(1)
			return Opinion{Verdict: claim.VerdictApproved, Confidence: 140}, nil
		}), WithMaxTries(5), WithBackoff(time.Millisecond, time.Millisecond))

		_, err := a.Evaluate(context.Background(), testClaim(100))
		if !errors.Is(err, ErrAdvisorUnavailable) || !strings.Contains(err.Error(), "malformed") {
			t.Fatalf("expected malformed-opinion failure, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls: got %d, want 1", calls.Load())
		}
	})
}
