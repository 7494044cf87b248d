// Package risk scores claims for fraud and anomaly signals. Scoring is a
// pure function of the claim and the history passed in.
package risk

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/xraph/adjudicator/types"
)

// Flag tags a heuristic that fired.
type Flag string

const (
	FlagCostDeviation Flag = "cost_deviation"
	FlagHighFrequency Flag = "high_frequency"
	FlagDuplicate     Flag = "duplicate"
)

// Config holds heuristic weights and thresholds.
type Config struct {
	CostDeviationWeight int           `json:"cost_deviation_weight" mapstructure:"cost_deviation_weight" yaml:"cost_deviation_weight"`
	FrequencyWeight     int           `json:"frequency_weight" mapstructure:"frequency_weight" yaml:"frequency_weight"`
	DuplicateWeight     int           `json:"duplicate_weight" mapstructure:"duplicate_weight" yaml:"duplicate_weight"`
	DeviationSigma      float64       `json:"deviation_sigma" mapstructure:"deviation_sigma" yaml:"deviation_sigma"`
	MinSamples          int           `json:"min_samples" mapstructure:"min_samples" yaml:"min_samples"`
	TrailingWindow      time.Duration `json:"trailing_window" mapstructure:"trailing_window" yaml:"trailing_window"`
	FrequencyWindow     time.Duration `json:"frequency_window" mapstructure:"frequency_window" yaml:"frequency_window"`
	MaxFrequency        int           `json:"max_frequency" mapstructure:"max_frequency" yaml:"max_frequency"`
}

// DefaultConfig returns the default heuristic settings.
func DefaultConfig() Config {
	return Config{
		CostDeviationWeight: 35,
		FrequencyWeight:     30,
		DuplicateWeight:     50,
		DeviationSigma:      2,
		MinSamples:          3,
		TrailingWindow:      180 * 24 * time.Hour,
		FrequencyWindow:     30 * 24 * time.Hour,
		MaxFrequency:        3,
	}
}

// Lookback returns how far back history must reach for a claim serviced at t.
func (c Config) Lookback(t time.Time) time.Time {
	return t.Add(-max(c.TrailingWindow, c.FrequencyWindow))
}

// Subject is the claim being scored.
type Subject struct {
	ClaimID     string
	MemberID    string
	ProviderID  string
	ServiceType string
	Billed      types.Money
	ServiceDate time.Time
}

// HistoryItem is a prior claim considered by the heuristics.
type HistoryItem struct {
	ClaimID     string
	MemberID    string
	ProviderID  string
	ServiceType string
	Billed      types.Money
	ServiceDate time.Time
	Voided      bool
}

// Assessment is the scorer's output. It is informational only.
type Assessment struct {
	Score   int      `json:"score"`
	Flags   []Flag   `json:"flags,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// Has reports whether f fired.
func (a Assessment) Has(f Flag) bool { return slices.Contains(a.Flags, f) }

// Scorer applies the heuristics in a fixed order: cost deviation, frequency,
// duplicate.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer. Zero fields in cfg take their defaults.
func NewScorer(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.CostDeviationWeight == 0 && cfg.FrequencyWeight == 0 && cfg.DuplicateWeight == 0 {
		cfg.CostDeviationWeight = def.CostDeviationWeight
		cfg.FrequencyWeight = def.FrequencyWeight
		cfg.DuplicateWeight = def.DuplicateWeight
	}
	if cfg.DeviationSigma <= 0 {
		cfg.DeviationSigma = def.DeviationSigma
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.TrailingWindow <= 0 {
		cfg.TrailingWindow = def.TrailingWindow
	}
	if cfg.FrequencyWindow <= 0 {
		cfg.FrequencyWindow = def.FrequencyWindow
	}
	if cfg.MaxFrequency <= 0 {
		cfg.MaxFrequency = def.MaxFrequency
	}
	return &Scorer{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config { return s.cfg }

// Score evaluates subject against history. The subject's own claim is
// ignored if it appears in history, so rescoring a resumed claim gives the
// same result.
func (s *Scorer) Score(subject Subject, history []HistoryItem) Assessment {
	var a Assessment
	prior := make([]HistoryItem, 0, len(history))
	for _, h := range history {
		if h.Voided || (subject.ClaimID != "" && h.ClaimID == subject.ClaimID) {
			continue
		}
		prior = append(prior, h)
	}

	if reason, ok := s.costDeviation(subject, prior); ok {
		a.add(FlagCostDeviation, s.cfg.CostDeviationWeight, reason)
	}
	if reason, ok := s.frequency(subject, prior); ok {
		a.add(FlagHighFrequency, s.cfg.FrequencyWeight, reason)
	}
	if reason, ok := duplicate(subject, prior); ok {
		a.add(FlagDuplicate, s.cfg.DuplicateWeight, reason)
	}
	a.Score = min(max(a.Score, 0), 100)
	return a
}

func (a *Assessment) add(f Flag, weight int, reason string) {
	a.Score += weight
	a.Flags = append(a.Flags, f)
	a.Reasons = append(a.Reasons, reason)
}

func (s *Scorer) costDeviation(subject Subject, prior []HistoryItem) (string, bool) {
	from := subject.ServiceDate.Add(-s.cfg.TrailingWindow)
	var samples []float64
	for _, h := range prior {
		if h.ProviderID != subject.ProviderID || h.ServiceType != subject.ServiceType {
			continue
		}
		if h.Billed.Currency != subject.Billed.Currency {
			continue
		}
		if h.ServiceDate.Before(from) || h.ServiceDate.After(subject.ServiceDate) {
			continue
		}
		samples = append(samples, float64(h.Billed.Amount))
	}
	if len(samples) < s.cfg.MinSamples {
		return "", false
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))
	var sq float64
	for _, v := range samples {
		sq += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(sq / float64(len(samples)))

	billed := float64(subject.Billed.Amount)
	meanMoney := types.New(int64(math.Round(mean)), subject.Billed.Currency)
	if sd == 0 {
		if billed > mean {
			return fmt.Sprintf("billed %s exceeds the uniform %s charged by provider %s for %s",
				subject.Billed, meanMoney, subject.ProviderID, subject.ServiceType), true
		}
		return "", false
	}
	z := (billed - mean) / sd
	if z <= s.cfg.DeviationSigma {
		return "", false
	}
	return fmt.Sprintf("billed %s is %.1f standard deviations above provider %s's mean %s for %s",
		subject.Billed, z, subject.ProviderID, meanMoney, subject.ServiceType), true
}

func (s *Scorer) frequency(subject Subject, prior []HistoryItem) (string, bool) {
	from := subject.ServiceDate.Add(-s.cfg.FrequencyWindow)
	count := 1
	for _, h := range prior {
		if h.MemberID != subject.MemberID || h.ProviderID != subject.ProviderID || h.ServiceType != subject.ServiceType {
			continue
		}
		if !h.ServiceDate.After(from) || h.ServiceDate.After(subject.ServiceDate) {
			continue
		}
		count++
	}
	if count <= s.cfg.MaxFrequency {
		return "", false
	}
	return fmt.Sprintf("%d %s claims by member %s at provider %s within %d days (limit %d)",
		count, subject.ServiceType, subject.MemberID, subject.ProviderID,
		int(s.cfg.FrequencyWindow.Hours()/24), s.cfg.MaxFrequency), true
}

func duplicate(subject Subject, prior []HistoryItem) (string, bool) {
	y, m, d := subject.ServiceDate.UTC().Date()
	for _, h := range prior {
		if h.MemberID != subject.MemberID || h.ServiceType != subject.ServiceType {
			continue
		}
		hy, hm, hd := h.ServiceDate.UTC().Date()
		if hy == y && hm == m && hd == d {
			return fmt.Sprintf("member %s already has a %s claim dated %s (%s)",
				subject.MemberID, subject.ServiceType, subject.ServiceDate.UTC().Format(time.DateOnly), h.ClaimID), true
		}
	}
	return "", false
}
