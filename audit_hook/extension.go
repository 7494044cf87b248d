// Package audithook bridges claim lifecycle events to an external audit
// trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit product directly. Callers inject a RecorderFunc adapter at wiring
// time. Hooks only enqueue; a background worker delivers each event
// at-least-once, retrying a failed Record with exponential backoff before
// the event is given up and logged. OnShutdown drains the queue.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnShutdown           = (*Extension)(nil)
	_ plugin.OnClaimSubmitted     = (*Extension)(nil)
	_ plugin.OnClaimAdjudicated   = (*Extension)(nil)
	_ plugin.OnClaimVoided        = (*Extension)(nil)
	_ plugin.OnAppealOpened       = (*Extension)(nil)
	_ plugin.OnBenefitExhausted   = (*Extension)(nil)
	_ plugin.OnAdvisorFailed      = (*Extension)(nil)
	_ plugin.OnTransition         = (*Extension)(nil)
	_ plugin.OnTransitionRejected = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is the backend-neutral audit record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	At         time.Time      `json:"at"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges claim lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	maxTries uint
	initial  time.Duration

	queueSize int
	start     sync.Once
	mu        sync.RWMutex
	closed    bool
	queue     chan delivery
	done      chan struct{}
}

type delivery struct {
	ctx context.Context
	evt *AuditEvent
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		maxTries: 5,
		initial:  100 * time.Millisecond,

		queueSize: 256,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = make(chan delivery, e.queueSize)
	e.done = make(chan struct{})
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnShutdown implements plugin.OnShutdown. It stops accepting events and
// waits for queued ones to be delivered or for ctx to end.
func (e *Extension) OnShutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	// Nothing was ever queued, so no worker is running.
	e.start.Do(func() { close(e.done) })

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit_hook: %d events undelivered: %w", len(e.queue), ctx.Err())
	}
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnClaimSubmitted implements plugin.OnClaimSubmitted.
func (e *Extension) OnClaimSubmitted(ctx context.Context, c *claim.Claim) error {
	return e.record(ctx, ActionClaimSubmitted, SeverityInfo, OutcomeSuccess,
		ResourceClaim, c.ID.String(), CategoryAdjudication, c.MemberID, "",
		"provider_id", c.ProviderID,
		"service_type", c.ServiceType,
		"billed", c.BilledAmount.String(),
		"catalog_version", c.CatalogVersion,
	)
}

// OnClaimAdjudicated implements plugin.OnClaimAdjudicated.
func (e *Extension) OnClaimAdjudicated(ctx context.Context, c *claim.Claim, rec *claim.DecisionRecord) error {
	action, severity := ActionClaimApproved, SeverityInfo
	switch rec.Verdict {
	case claim.VerdictDenied:
		action = ActionClaimDenied
	case claim.VerdictReviewRequired:
		action, severity = ActionClaimReview, SeverityWarning
	}
	actor := rec.DecidedBy
	if actor == "" {
		actor = string(rec.Source)
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceClaim, c.ID.String(), CategoryAdjudication, actor, "",
		"decision_id", rec.ID.String(),
		"source", string(rec.Source),
		"confidence", rec.Confidence,
		"risk_score", rec.RiskScore,
		"risk_flags", rec.RiskFlags,
		"reasons", rec.Reasons,
		"coverage", rec.CoverageAmount.String(),
		"patient_responsibility", rec.PatientResponsibility.String(),
	)
}

// OnClaimVoided implements plugin.OnClaimVoided.
func (e *Extension) OnClaimVoided(ctx context.Context, c *claim.Claim) error {
	var actor, reason, reversal, method string
	if c.Void != nil {
		actor, reason, reversal, method = c.Void.RequestedBy, c.Void.Reason, c.Void.Reversal, string(c.Void.ProofMethod)
	}
	return e.record(ctx, ActionClaimVoided, SeverityWarning, OutcomeSuccess,
		ResourceClaim, c.ID.String(), CategoryLifecycle, actor, reason,
		"reversal_entry", reversal,
		"proof_method", method,
	)
}

// OnAppealOpened implements plugin.OnAppealOpened.
func (e *Extension) OnAppealOpened(ctx context.Context, c *claim.Claim) error {
	var actor, appealID string
	var docs int
	if c.Appeal != nil {
		actor, appealID, docs = c.Appeal.Evidence.SubmittedBy, c.Appeal.ID.String(), len(c.Appeal.Evidence.Documents)
	}
	return e.record(ctx, ActionAppealOpened, SeverityInfo, OutcomeSuccess,
		ResourceAppeal, c.ID.String(), CategoryLifecycle, actor, "",
		"appeal_id", appealID,
		"documents", docs,
	)
}

// OnBenefitExhausted implements plugin.OnBenefitExhausted.
func (e *Extension) OnBenefitExhausted(ctx context.Context, c *claim.Claim) error {
	return e.record(ctx, ActionBenefitExhausted, SeverityWarning, OutcomeFailure,
		ResourceBenefit, c.ID.String(), CategoryBenefit, "", "benefit exhausted",
		"pool_member_id", c.PoolMemberID,
		"category_id", c.CategoryID,
		"period_key", c.PeriodKey,
	)
}

// OnAdvisorFailed implements plugin.OnAdvisorFailed.
func (e *Extension) OnAdvisorFailed(ctx context.Context, c *claim.Claim, err error) error {
	return e.record(ctx, ActionAdvisorFailed, SeverityError, OutcomeFailure,
		ResourceAdvisor, c.ID.String(), CategoryIntegration, "", err.Error())
}

// ──────────────────────────────────────────────────
// Audit hooks
// ──────────────────────────────────────────────────

// OnTransition implements plugin.OnTransition.
func (e *Extension) OnTransition(ctx context.Context, c *claim.Claim, entry *claim.AuditEntry) error {
	return e.record(ctx, ActionTransition, SeverityInfo, OutcomeSuccess,
		ResourceClaim, c.ID.String(), CategoryLifecycle, entry.Actor, entry.Reason,
		"seq", entry.Seq,
		"from", string(entry.From),
		"to", string(entry.To),
	)
}

// OnTransitionRejected implements plugin.OnTransitionRejected.
func (e *Extension) OnTransitionRejected(ctx context.Context, c *claim.Claim, entry *claim.AuditEntry) error {
	return e.record(ctx, ActionTransitionRejected, SeverityWarning, OutcomeFailure,
		ResourceClaim, c.ID.String(), CategoryLifecycle, entry.Actor, entry.Error,
		"seq", entry.Seq,
		"from", string(entry.From),
		"to", string(entry.To),
		"detail", entry.Reason,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds an audit event and queues it if the action is enabled.
// It never returns an error.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	actor, reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      actor,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		At:         time.Now().UTC(),
	}

	e.enqueue(ctx, evt)
	return nil
}

// enqueue hands evt to the worker without blocking. Events arriving after
// shutdown or with the queue full are logged and dropped.
func (e *Extension) enqueue(ctx context.Context, evt *AuditEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("audit_hook: event after shutdown dropped",
			"action", evt.Action,
			"resource_id", evt.ResourceID,
		)
		return
	}
	e.start.Do(func() { go e.run() })
	select {
	case e.queue <- delivery{ctx: context.WithoutCancel(ctx), evt: evt}:
	default:
		e.logger.Error("audit_hook: queue full, event dropped",
			"action", evt.Action,
			"resource_id", evt.ResourceID,
			"queue_size", cap(e.queue),
		)
	}
}

func (e *Extension) run() {
	defer close(e.done)
	for d := range e.queue {
		e.deliver(d.ctx, d.evt)
	}
}

// deliver retries Record with backoff. Failures are logged and never
// returned.
func (e *Extension) deliver(ctx context.Context, evt *AuditEvent) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.initial
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, e.recorder.Record(ctx, evt)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(e.maxTries),
	)
	if err != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", evt.Action,
			"resource_id", evt.ResourceID,
			"error", err,
		)
	}
}
