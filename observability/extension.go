// Package observability provides a metrics extension that records claim
// lifecycle counts through a MetricFactory.
package observability

import (
	"context"
	"strings"

	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnClaimSubmitted     = (*MetricsExtension)(nil)
	_ plugin.OnClaimAdjudicated   = (*MetricsExtension)(nil)
	_ plugin.OnClaimVoided        = (*MetricsExtension)(nil)
	_ plugin.OnAppealOpened       = (*MetricsExtension)(nil)
	_ plugin.OnBenefitExhausted   = (*MetricsExtension)(nil)
	_ plugin.OnAdvisorFailed      = (*MetricsExtension)(nil)
	_ plugin.OnTransition         = (*MetricsExtension)(nil)
	_ plugin.OnTransitionRejected = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide claim metrics.
// Register it as a plugin to track adjudication outcomes automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Claim metrics
	ClaimsSubmitted Counter
	ClaimsApproved  Counter
	ClaimsDenied    Counter
	ClaimsReview    Counter
	ClaimsVoided    Counter
	AppealsOpened   Counter

	// Decision metrics
	RiskScore         Histogram
	AdvisorConfidence Histogram
	CoverageAmount    Histogram
	ManualDecisions   Counter
	AppealDecisions   Counter

	// Benefit metrics
	BenefitExhausted Counter

	// Error metrics
	AdvisorFailures     Counter
	TransitionsRejected Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		ClaimsSubmitted: factory.Counter("adjudicator.claim.submitted"),
		ClaimsApproved:  factory.Counter("adjudicator.claim.approved"),
		ClaimsDenied:    factory.Counter("adjudicator.claim.denied"),
		ClaimsReview:    factory.Counter("adjudicator.claim.review_required"),
		ClaimsVoided:    factory.Counter("adjudicator.claim.voided"),
		AppealsOpened:   factory.Counter("adjudicator.appeal.opened"),

		RiskScore:         factory.Histogram("adjudicator.decision.risk_score"),
		AdvisorConfidence: factory.Histogram("adjudicator.decision.confidence"),
		CoverageAmount:    factory.Histogram("adjudicator.decision.coverage_minor_units"),
		ManualDecisions:   factory.Counter("adjudicator.decision.manual"),
		AppealDecisions:   factory.Counter("adjudicator.decision.appeal"),

		BenefitExhausted: factory.Counter("adjudicator.benefit.exhausted"),

		AdvisorFailures:     factory.Counter("adjudicator.advisor.failures"),
		TransitionsRejected: factory.Counter("adjudicator.transition.rejected"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnClaimSubmitted implements plugin.OnClaimSubmitted.
func (m *MetricsExtension) OnClaimSubmitted(_ context.Context, _ *claim.Claim) error {
	m.ClaimsSubmitted.Inc()
	return nil
}

// OnClaimAdjudicated implements plugin.OnClaimAdjudicated.
func (m *MetricsExtension) OnClaimAdjudicated(_ context.Context, _ *claim.Claim, rec *claim.DecisionRecord) error {
	switch rec.Verdict {
	case claim.VerdictApproved:
		m.ClaimsApproved.Inc()
		m.CoverageAmount.Observe(float64(rec.CoverageAmount.Amount))
	case claim.VerdictDenied:
		m.ClaimsDenied.Inc()
	case claim.VerdictReviewRequired:
		m.ClaimsReview.Inc()
	}
	switch rec.Source {
	case claim.SourceManual:
		m.ManualDecisions.Inc()
	case claim.SourceAppeal:
		m.AppealDecisions.Inc()
	default:
		m.RiskScore.Observe(float64(rec.RiskScore))
		m.AdvisorConfidence.Observe(float64(rec.Confidence))
	}
	return nil
}

// OnClaimVoided implements plugin.OnClaimVoided.
func (m *MetricsExtension) OnClaimVoided(_ context.Context, _ *claim.Claim) error {
	m.ClaimsVoided.Inc()
	return nil
}

// OnAppealOpened implements plugin.OnAppealOpened.
func (m *MetricsExtension) OnAppealOpened(_ context.Context, _ *claim.Claim) error {
	m.AppealsOpened.Inc()
	return nil
}

// OnBenefitExhausted implements plugin.OnBenefitExhausted.
func (m *MetricsExtension) OnBenefitExhausted(_ context.Context, _ *claim.Claim) error {
	m.BenefitExhausted.Inc()
	return nil
}

// OnAdvisorFailed implements plugin.OnAdvisorFailed.
func (m *MetricsExtension) OnAdvisorFailed(_ context.Context, _ *claim.Claim, _ error) error {
	m.AdvisorFailures.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Transition hooks
// ──────────────────────────────────────────────────

// OnTransition implements plugin.OnTransition. Each edge gets its own
// counter, created on first use.
func (m *MetricsExtension) OnTransition(_ context.Context, _ *claim.Claim, entry *claim.AuditEntry) error {
	name := "adjudicator.transition." + string(entry.From) + "." + string(entry.To)
	m.factory.Counter(strings.ToLower(name)).Inc()
	return nil
}

// OnTransitionRejected implements plugin.OnTransitionRejected.
func (m *MetricsExtension) OnTransitionRejected(_ context.Context, _ *claim.Claim, _ *claim.AuditEntry) error {
	m.TransitionsRejected.Inc()
	return nil
}
