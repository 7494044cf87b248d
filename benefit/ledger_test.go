package benefit_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/store/memory"
	"github.com/xraph/adjudicator/types"
)

type fixedLimit types.Money

func (f fixedLimit) LimitFor(string, string) (types.Money, error) { return types.Money(f), nil }

var outpatient = benefit.Key{MemberID: "m1", CategoryID: "outpatient", PeriodKey: "Y2026"}

func TestReserveAndCommit(t *testing.T) {
	ctx := context.Background()
	l := benefit.NewLedger(memory.New())
	limit := fixedLimit(types.USD(100000))

	e, err := l.ReserveAndCommit(ctx, limit, outpatient, types.USD(40000), "c1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if e.UsageAfter != types.USD(40000) || e.Kind != benefit.EntryCommit {
		t.Errorf("entry: %+v", e)
	}

	// Same reference is a no-op.
	again, err := l.ReserveAndCommit(ctx, limit, outpatient, types.USD(40000), "c1")
	if err != nil {
		t.Fatalf("repeat commit: %v", err)
	}
	if again.ID.String() != e.ID.String() {
		t.Error("repeated commit produced a new entry")
	}

	if _, err := l.ReserveAndCommit(ctx, limit, outpatient, types.USD(60000), "c2"); err != nil {
		t.Fatalf("commit to exactly the limit: %v", err)
	}
	if _, err := l.ReserveAndCommit(ctx, limit, outpatient, types.USD(1), "c3"); !errors.Is(err, benefit.ErrInsufficientBenefit) {
		t.Fatalf("expected ErrInsufficientBenefit, got %v", err)
	}

	used, _ := l.CurrentUsage(ctx, outpatient, "usd")
	if used != types.USD(100000) {
		t.Errorf("usage: got %v", used)
	}
}

func TestReserveRefusesAmountsThatWouldWrap(t *testing.T) {
	ctx := context.Background()
	l := benefit.NewLedger(memory.New())
	limit := fixedLimit(types.USD(100000))

	if _, err := l.ReserveAndCommit(ctx, limit, outpatient, types.USD(5000), "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.ReserveAndCommit(ctx, limit, outpatient, types.USD(math.MaxInt64), "c2"); !errors.Is(err, benefit.ErrInsufficientBenefit) {
		t.Fatalf("expected ErrInsufficientBenefit, got %v", err)
	}
	if used, _ := l.CurrentUsage(ctx, outpatient, "usd"); used != types.USD(5000) {
		t.Errorf("usage: got %v, want $50.00", used)
	}
	e, err := l.Entry(ctx, "c2", benefit.EntryCommit)
	if err != nil || e != nil {
		t.Errorf("refused commit left an entry: %+v, %v", e, err)
	}
}

func TestReserveRejectsBadAmounts(t *testing.T) {
	ctx := context.Background()
	l := benefit.NewLedger(memory.New())
	limit := fixedLimit(types.USD(100000))

	tests := []struct {
		name   string
		amount types.Money
		ref    string
	}{
		{"negative", types.USD(-1), "n"},
		{"wrong currency", types.EUR(100), "e"},
		{"missing reference", types.USD(100), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.ReserveAndCommit(ctx, limit, outpatient, tt.amount, tt.ref); !errors.Is(err, benefit.ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
		})
	}
}

func TestReverse(t *testing.T) {
	ctx := context.Background()
	l := benefit.NewLedger(memory.New())
	limit := fixedLimit(types.USD(100000))

	if _, err := l.ReserveAndCommit(ctx, limit, outpatient, types.USD(30000), "c1"); err != nil {
		t.Fatal(err)
	}
	r, err := l.Reverse(ctx, outpatient, types.USD(30000), "c1")
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if !r.UsageAfter.IsZero() {
		t.Errorf("usage after reversal: %v", r.UsageAfter)
	}

	// A second reversal under the same reference changes nothing.
	if _, err := l.Reverse(ctx, outpatient, types.USD(30000), "c1"); err != nil {
		t.Fatalf("repeat Reverse: %v", err)
	}
	if used, _ := l.CurrentUsage(ctx, outpatient, "usd"); !used.IsZero() {
		t.Errorf("usage: got %v, want 0", used)
	}

	if _, err := l.Reverse(ctx, outpatient, types.USD(1), "c2"); !errors.Is(err, benefit.ErrReversalExceedsUsage) {
		t.Errorf("expected ErrReversalExceedsUsage, got %v", err)
	}
}

func TestInvariantViolationDetected(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	if err := s.CompareAndSwapUsage(ctx, &benefit.UsageRecord{Key: outpatient, Used: types.USD(500)}, 0); err != nil {
		t.Fatal(err)
	}
	l := benefit.NewLedger(s)
	if _, err := l.ReserveAndCommit(ctx, fixedLimit(types.USD(100)), outpatient, types.USD(0), "z"); !errors.Is(err, benefit.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestConcurrentCommitsNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	l := benefit.NewLedger(memory.New(), benefit.WithMaxRetries(1000))
	limit := fixedLimit(types.USD(100000))

	const workers = 50
	var wg sync.WaitGroup
	var ok, refused atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.ReserveAndCommit(ctx, limit, outpatient, types.USD(3000), fmt.Sprintf("c%d", i))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, benefit.ErrInsufficientBenefit):
				refused.Add(1)
			default:
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	// 33 commits of 30.00 fit into 1000.00.
	if ok.Load() != 33 || refused.Load() != workers-33 {
		t.Errorf("committed %d, refused %d", ok.Load(), refused.Load())
	}
	used, _ := l.CurrentUsage(ctx, outpatient, "usd")
	if used != types.USD(99000) {
		t.Errorf("usage: got %v, want 990.00", used)
	}
}

func TestLastBenefitGoesToOneClaim(t *testing.T) {
	ctx := context.Background()
	l := benefit.NewLedger(memory.New())
	limit := fixedLimit(types.USD(50000))
	if _, err := l.ReserveAndCommit(ctx, limit, outpatient, types.USD(40000), "seed"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.ReserveAndCommit(ctx, limit, outpatient, types.USD(8000), fmt.Sprintf("race%d", i))
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else if !errors.Is(err, benefit.ErrInsufficientBenefit) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one commit, got %d", won)
	}
}

type flakyJournal struct {
	*memory.Store
	fail bool
}

func (f *flakyJournal) AppendEntry(ctx context.Context, e *benefit.Entry) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Store.AppendEntry(ctx, e)
}

func TestJournalFailureCompensates(t *testing.T) {
	ctx := context.Background()
	s := &flakyJournal{Store: memory.New(), fail: true}
	l := benefit.NewLedger(s)

	if _, err := l.ReserveAndCommit(ctx, fixedLimit(types.USD(1000)), outpatient, types.USD(700), "c1"); err == nil {
		t.Fatal("expected journal failure")
	}
	if used, _ := l.CurrentUsage(ctx, outpatient, "usd"); !used.IsZero() {
		t.Errorf("usage not compensated: %v", used)
	}

	s.fail = false
	if _, err := l.ReserveAndCommit(ctx, fixedLimit(types.USD(1000)), outpatient, types.USD(700), "c1"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if used, _ := l.CurrentUsage(ctx, outpatient, "usd"); used != types.USD(700) {
		t.Errorf("usage: got %v", used)
	}
}

func TestUsageSummary(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap, err := catalog.New().Publish(catalog.Snapshot{
		Currency: "usd",
		Categories: map[string]catalog.BenefitCategory{
			"outpatient": {ID: "outpatient", CoveragePercent: 80, PeriodicLimit: types.USD(100000), PeriodStart: start, ResetRule: catalog.ResetAnnual},
			"dental":     {ID: "dental", CoveragePercent: 50, PeriodicLimit: types.USD(20000), PeriodStart: start.AddDate(1, 0, 0), ResetRule: catalog.ResetAnnual},
		},
		Services: map[string]string{"consultation": "outpatient", "filling": "dental"},
	})
	if err != nil {
		t.Fatal(err)
	}

	l := benefit.NewLedger(memory.New())
	if _, err := l.ReserveAndCommit(ctx, snap, outpatient, types.USD(25000), "c1"); err != nil {
		t.Fatal(err)
	}

	summary, err := l.Usage(ctx, "m1", snap, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	// Dental coverage has not started yet.
	if len(summary) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summary))
	}
	got := summary[0]
	if got.CategoryID != "outpatient" || got.Used != types.USD(25000) || got.Remaining != types.USD(75000) {
		t.Errorf("summary: %+v", got)
	}

	next, _ := l.Usage(ctx, "m1", snap, time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC))
	for _, s := range next {
		if !s.Used.IsZero() {
			t.Errorf("%s used %v in a fresh period", s.CategoryID, s.Used)
		}
	}
}
