package notifyhook

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/types"
)

func TestDecisionNotifications(t *testing.T) {
	var sent []Notification
	ext := New(NotifierFunc(func(_ context.Context, n Notification) error {
		sent = append(sent, n)
		return nil
	}), WithReviewQueue("reviewers"))

	c := &claim.Claim{ID: id.NewClaimID(), MemberID: "m1", ServiceType: "consultation", BilledAmount: types.USD(10000)}

	approved := &claim.DecisionRecord{Verdict: claim.VerdictApproved, CoverageAmount: types.USD(8000), PatientResponsibility: types.USD(2000)}
	_ = ext.OnClaimAdjudicated(context.Background(), c, approved)
	if len(sent) != 1 || sent[0].Recipient != "m1" || !strings.Contains(sent[0].Body, "$80.00") {
		t.Fatalf("approval: %+v", sent)
	}

	sent = nil
	review := &claim.DecisionRecord{Verdict: claim.VerdictReviewRequired, Reasons: []string{"risk score 80 at or above review threshold 70"}}
	_ = ext.OnClaimAdjudicated(context.Background(), c, review)
	if len(sent) != 2 || sent[0].Recipient != "reviewers" || sent[0].Kind != KindReviewRequired {
		t.Fatalf("review: %+v", sent)
	}
}

func TestNotifyFailureIsDropped(t *testing.T) {
	calls := 0
	ext := New(NotifierFunc(func(context.Context, Notification) error {
		calls++
		return errors.New("sms gateway down")
	}))
	c := &claim.Claim{ID: id.NewClaimID(), PoolMemberID: "m1", CategoryID: "outpatient", PeriodKey: "Y2026"}
	if err := ext.OnBenefitExhausted(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}
