// Package notifyhook forwards member-facing claim events to a notification
// channel (SMS, push, email). Delivery is best-effort: a failed Notify is
// logged once and dropped.
package notifyhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/plugin"
)

var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnClaimAdjudicated = (*Extension)(nil)
	_ plugin.OnClaimVoided      = (*Extension)(nil)
	_ plugin.OnAppealOpened     = (*Extension)(nil)
	_ plugin.OnBenefitExhausted = (*Extension)(nil)
)

// Kind classifies a notification.
type Kind string

const (
	KindDecision         Kind = "decision"
	KindReviewRequired   Kind = "review_required"
	KindVoided           Kind = "voided"
	KindAppealOpened     Kind = "appeal_opened"
	KindBenefitExhausted Kind = "benefit_exhausted"
)

// Notification is a message for one recipient.
type Notification struct {
	Kind      Kind              `json:"kind"`
	Recipient string            `json:"recipient"`
	ClaimID   string            `json:"claim_id"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithReviewQueue sends review_required notices to the given recipient
// (a reviewer group or queue name) in addition to the member.
func WithReviewQueue(recipient string) Option {
	return func(e *Extension) { e.reviewQueue = recipient }
}

// Extension turns lifecycle events into notifications.
type Extension struct {
	notifier    Notifier
	reviewQueue string
	logger      *slog.Logger
}

// New creates a notification extension.
func New(n Notifier, opts ...Option) *Extension {
	e := &Extension{notifier: n, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "notify-hook" }

// OnClaimAdjudicated implements plugin.OnClaimAdjudicated.
func (e *Extension) OnClaimAdjudicated(ctx context.Context, c *claim.Claim, rec *claim.DecisionRecord) error {
	data := map[string]string{
		"verdict":                string(rec.Verdict),
		"coverage":               rec.CoverageAmount.String(),
		"patient_responsibility": rec.PatientResponsibility.String(),
	}
	var body string
	switch rec.Verdict {
	case claim.VerdictApproved:
		body = fmt.Sprintf("Your %s claim for %s was approved. Covered: %s. You pay: %s.",
			c.ServiceType, c.BilledAmount, rec.CoverageAmount, rec.PatientResponsibility)
	case claim.VerdictDenied:
		body = fmt.Sprintf("Your %s claim for %s was denied: %s.",
			c.ServiceType, c.BilledAmount, strings.Join(rec.Reasons, "; "))
	default:
		body = fmt.Sprintf("Your %s claim for %s is being reviewed.", c.ServiceType, c.BilledAmount)
		if e.reviewQueue != "" {
			e.send(ctx, Notification{
				Kind:      KindReviewRequired,
				Recipient: e.reviewQueue,
				ClaimID:   c.ID.String(),
				Subject:   "Claim awaiting review",
				Body:      strings.Join(rec.Reasons, "; "),
				Data:      data,
			})
		}
	}
	e.send(ctx, Notification{
		Kind:      KindDecision,
		Recipient: c.MemberID,
		ClaimID:   c.ID.String(),
		Subject:   "Claim " + strings.ReplaceAll(string(rec.Verdict), "_", " "),
		Body:      body,
		Data:      data,
	})
	return nil
}

// OnClaimVoided implements plugin.OnClaimVoided.
func (e *Extension) OnClaimVoided(ctx context.Context, c *claim.Claim) error {
	e.send(ctx, Notification{
		Kind:      KindVoided,
		Recipient: c.MemberID,
		ClaimID:   c.ID.String(),
		Subject:   "Claim voided",
		Body:      fmt.Sprintf("Your %s claim for %s was voided and the benefit restored.", c.ServiceType, c.BilledAmount),
	})
	return nil
}

// OnAppealOpened implements plugin.OnAppealOpened.
func (e *Extension) OnAppealOpened(ctx context.Context, c *claim.Claim) error {
	e.send(ctx, Notification{
		Kind:      KindAppealOpened,
		Recipient: c.MemberID,
		ClaimID:   c.ID.String(),
		Subject:   "Appeal received",
		Body:      fmt.Sprintf("We received your appeal for the %s claim.", c.ServiceType),
	})
	return nil
}

// OnBenefitExhausted implements plugin.OnBenefitExhausted.
func (e *Extension) OnBenefitExhausted(ctx context.Context, c *claim.Claim) error {
	e.send(ctx, Notification{
		Kind:      KindBenefitExhausted,
		Recipient: c.PoolMemberID,
		ClaimID:   c.ID.String(),
		Subject:   "Benefit limit reached",
		Body:      fmt.Sprintf("The %s benefit for period %s is used up.", c.CategoryID, c.PeriodKey),
		Data:      map[string]string{"category_id": c.CategoryID, "period_key": c.PeriodKey},
	})
	return nil
}

func (e *Extension) send(ctx context.Context, n Notification) {
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("notify_hook: notification dropped",
			"kind", string(n.Kind),
			"claim_id", n.ClaimID,
			"error", err,
		)
	}
}
