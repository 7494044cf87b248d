package audithook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/types"
)

type flakyRecorder struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []*AuditEvent
}

func (f *flakyRecorder) Record(_ context.Context, evt *AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("audit backend unavailable")
	}
	f.events = append(f.events, evt)
	return nil
}

func testClaim() *claim.Claim {
	return &claim.Claim{
		ID:           id.NewClaimID(),
		MemberID:     "m1",
		ProviderID:   "p1",
		ServiceType:  "consultation",
		BilledAmount: types.USD(10000),
	}
}

// drain waits for every queued event to be delivered.
func drain(t *testing.T, ext *Extension) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ext.OnShutdown(ctx); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}
}

// stalledRecorder blocks every Record until release is closed.
type stalledRecorder struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	events  []*AuditEvent
}

func newStalledRecorder() *stalledRecorder {
	return &stalledRecorder{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stalledRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func TestHooksDoNotWaitForRecorder(t *testing.T) {
	rec := newStalledRecorder()
	ext := New(rec)

	returned := make(chan struct{})
	go func() {
		_ = ext.OnClaimSubmitted(context.Background(), testClaim())
		_ = ext.OnClaimVoided(context.Background(), testClaim())
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("hooks blocked on a stalled recorder")
	}

	close(rec.release)
	drain(t, ext)
	if len(rec.events) != 2 {
		t.Errorf("delivered: got %d, want 2", len(rec.events))
	}
}

func TestQueueFullDropsEvents(t *testing.T) {
	rec := newStalledRecorder()
	ext := New(rec, WithQueueSize(1))
	ctx := context.Background()

	_ = ext.OnClaimSubmitted(ctx, testClaim())
	<-rec.entered // the worker holds the first event
	_ = ext.OnClaimSubmitted(ctx, testClaim())
	_ = ext.OnClaimSubmitted(ctx, testClaim())

	close(rec.release)
	drain(t, ext)
	if len(rec.events) != 2 {
		t.Errorf("delivered: got %d, want 2", len(rec.events))
	}
}

func TestShutdownWithNothingQueued(t *testing.T) {
	ext := New(&flakyRecorder{})
	drain(t, ext)
	// A second shutdown and a late event are both harmless.
	drain(t, ext)
	if err := ext.OnClaimSubmitted(context.Background(), testClaim()); err != nil {
		t.Fatal(err)
	}
}

func TestRecordRetriesUntilDelivered(t *testing.T) {
	rec := &flakyRecorder{failures: 2}
	ext := New(rec, WithRetry(5, time.Millisecond))

	if err := ext.OnClaimSubmitted(context.Background(), testClaim()); err != nil {
		t.Fatalf("OnClaimSubmitted: %v", err)
	}
	drain(t, ext)
	if rec.calls != 3 || len(rec.events) != 1 {
		t.Fatalf("calls %d, delivered %d", rec.calls, len(rec.events))
	}
	evt := rec.events[0]
	if evt.Action != ActionClaimSubmitted || evt.Actor != "m1" || evt.Metadata["provider_id"] != "p1" {
		t.Errorf("event: %+v", evt)
	}
}

func TestRecordGivesUp(t *testing.T) {
	rec := &flakyRecorder{failures: 100}
	ext := New(rec, WithRetry(3, time.Millisecond))

	// Delivery failures never reach the caller.
	if err := ext.OnAdvisorFailed(context.Background(), testClaim(), errors.New("timeout")); err != nil {
		t.Fatalf("OnAdvisorFailed: %v", err)
	}
	drain(t, ext)
	if rec.calls != 3 {
		t.Errorf("calls: got %d, want 3", rec.calls)
	}
}

func TestAdjudicatedAction(t *testing.T) {
	tests := []struct {
		verdict claim.Verdict
		action  string
	}{
		{claim.VerdictApproved, ActionClaimApproved},
		{claim.VerdictDenied, ActionClaimDenied},
		{claim.VerdictReviewRequired, ActionClaimReview},
	}
	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			rec := &flakyRecorder{}
			ext := New(rec)
			d := &claim.DecisionRecord{ID: id.NewDecisionID(), Verdict: tt.verdict, Source: claim.SourceEngine}
			_ = ext.OnClaimAdjudicated(context.Background(), testClaim(), d)
			drain(t, ext)
			if len(rec.events) != 1 || rec.events[0].Action != tt.action || rec.events[0].Actor != "engine" {
				t.Errorf("events: %+v", rec.events)
			}
		})
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	c := testClaim()
	entry := &claim.AuditEntry{ClaimID: c.ID, From: claim.StatusPending, To: claim.StatusApproved}

	rec := &flakyRecorder{}
	ext := New(rec, WithEnabledActions(ActionTransition))
	_ = ext.OnTransition(ctx, c, entry)
	_ = ext.OnClaimSubmitted(ctx, c)
	drain(t, ext)
	if len(rec.events) != 1 || rec.events[0].Action != ActionTransition {
		t.Errorf("enabled filter: %+v", rec.events)
	}

	rec = &flakyRecorder{}
	ext = New(rec, WithDisabledActions(ActionTransition))
	_ = ext.OnTransition(ctx, c, entry)
	_ = ext.OnClaimSubmitted(ctx, c)
	drain(t, ext)
	if len(rec.events) != 1 || rec.events[0].Action != ActionClaimSubmitted {
		t.Errorf("disabled filter: %+v", rec.events)
	}
}
