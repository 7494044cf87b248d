package risk

import (
	"reflect"
	"testing"
	"time"

	"github.com/xraph/adjudicator/types"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func item(id, member, provider, service string, cents int64, daysAgo int) HistoryItem {
	return HistoryItem{
		ClaimID:     id,
		MemberID:    member,
		ProviderID:  provider,
		ServiceType: service,
		Billed:      types.USD(cents),
		ServiceDate: base.AddDate(0, 0, -daysAgo),
	}
}

func subject(cents int64) Subject {
	return Subject{
		ClaimID:     "clm-new",
		MemberID:    "m1",
		ProviderID:  "p1",
		ServiceType: "consultation",
		Billed:      types.USD(cents),
		ServiceDate: base,
	}
}

func TestScore(t *testing.T) {
	// Other members' consultations at p1 establish the provider's cost baseline.
	baseline := []HistoryItem{
		item("h1", "m2", "p1", "consultation", 10000, 40),
		item("h2", "m3", "p1", "consultation", 11000, 50),
		item("h3", "m4", "p1", "consultation", 9000, 60),
		item("h4", "m5", "p1", "consultation", 10000, 70),
	}

	tests := []struct {
		name    string
		subject Subject
		history []HistoryItem
		score   int
		flags   []Flag
	}{
		{"no history", subject(10000), nil, 0, nil},
		{"within baseline", subject(11000), baseline, 0, nil},
		{"cost deviation", subject(50000), baseline, 35, []Flag{FlagCostDeviation}},
		{"too few samples", subject(50000), baseline[:2], 0, nil},
		{"uniform baseline exceeded", subject(10001), []HistoryItem{
			item("u1", "m2", "p1", "consultation", 10000, 5),
			item("u2", "m3", "p1", "consultation", 10000, 6),
			item("u3", "m4", "p1", "consultation", 10000, 7),
		}, 35, []Flag{FlagCostDeviation}},
		{"other provider ignored", subject(50000), []HistoryItem{
			item("o1", "m2", "p2", "consultation", 100, 5),
			item("o2", "m3", "p2", "consultation", 100, 6),
			item("o3", "m4", "p2", "consultation", 100, 7),
		}, 0, nil},
		{"high frequency", subject(10000), []HistoryItem{
			item("f1", "m1", "p1", "consultation", 10000, 3),
			item("f2", "m1", "p1", "consultation", 10000, 10),
			item("f3", "m1", "p1", "consultation", 10000, 20),
		}, 30, []Flag{FlagHighFrequency}},
		{"frequency outside window", subject(10000), []HistoryItem{
			item("f1", "m1", "p1", "consultation", 10000, 3),
			item("f2", "m1", "p1", "consultation", 10000, 10),
			item("f3", "m1", "p1", "consultation", 10000, 45),
		}, 0, nil},
		{"duplicate same day", subject(10000), []HistoryItem{
			{ClaimID: "d1", MemberID: "m1", ProviderID: "p9", ServiceType: "consultation", Billed: types.USD(10000), ServiceDate: base.Add(-2 * time.Hour)},
		}, 50, []Flag{FlagDuplicate}},
		{"voided duplicate ignored", subject(10000), []HistoryItem{
			{ClaimID: "d1", MemberID: "m1", ProviderID: "p1", ServiceType: "consultation", Billed: types.USD(10000), ServiceDate: base, Voided: true},
		}, 0, nil},
		{"self ignored", subject(10000), []HistoryItem{
			{ClaimID: "clm-new", MemberID: "m1", ProviderID: "p1", ServiceType: "consultation", Billed: types.USD(10000), ServiceDate: base},
		}, 0, nil},
		{"frequency and duplicate", subject(10000), []HistoryItem{
			item("x1", "m1", "p1", "consultation", 10000, 0),
			item("x2", "m1", "p1", "consultation", 10000, 4),
			item("x3", "m1", "p1", "consultation", 10000, 8),
		}, 80, []Flag{FlagHighFrequency, FlagDuplicate}},
		{"all three clamp at 100", subject(90000), append([]HistoryItem{
			item("a1", "m1", "p1", "consultation", 10000, 0),
			item("a2", "m1", "p1", "consultation", 10000, 4),
			item("a3", "m1", "p1", "consultation", 10000, 8),
		}, baseline...), 100, []Flag{FlagCostDeviation, FlagHighFrequency, FlagDuplicate}},
	}

	s := NewScorer(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.subject, tt.history)
			if got.Score != tt.score {
				t.Errorf("Score: got %d, want %d (reasons %v)", got.Score, tt.score, got.Reasons)
			}
			if !reflect.DeepEqual(got.Flags, tt.flags) {
				t.Errorf("Flags: got %v, want %v", got.Flags, tt.flags)
			}
			if len(got.Reasons) != len(got.Flags) {
				t.Errorf("expected one reason per flag, got %d reasons for %d flags", len(got.Reasons), len(got.Flags))
			}
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := NewScorer(Config{})
	history := []HistoryItem{
		item("a", "m1", "p1", "consultation", 10000, 0),
		item("b", "m2", "p1", "consultation", 12000, 9),
	}
	first := s.Score(subject(15000), history)
	for i := 0; i < 20; i++ {
		if got := s.Score(subject(15000), history); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestNewScorerDefaults(t *testing.T) {
	cfg := NewScorer(Config{}).Config()
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("zero config should take defaults, got %+v", cfg)
	}
}
