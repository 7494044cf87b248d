// Package plugin lets extensions observe claim processing. A plugin
// implements Plugin plus any of the hook interfaces below; the Registry
// discovers them at registration time.
package plugin

import (
	"context"

	"github.com/xraph/adjudicator/claim"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Engine hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *adjudicator.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnClaimSubmitted is called after a new claim is stored as pending.
type OnClaimSubmitted interface {
	Plugin
	OnClaimSubmitted(ctx context.Context, c *claim.Claim) error
}

// OnClaimAdjudicated is called after a decision record is attached to a
// claim, whether by the engine, a reviewer or an appeal.
type OnClaimAdjudicated interface {
	Plugin
	OnClaimAdjudicated(ctx context.Context, c *claim.Claim, rec *claim.DecisionRecord) error
}

// OnClaimVoided is called after an approved claim is voided and its
// benefit reversed.
type OnClaimVoided interface {
	Plugin
	OnClaimVoided(ctx context.Context, c *claim.Claim) error
}

// OnAppealOpened is called when a denied claim moves to under_appeal.
type OnAppealOpened interface {
	Plugin
	OnAppealOpened(ctx context.Context, c *claim.Claim) error
}

// OnBenefitExhausted is called when a claim is denied because its benefit
// pool cannot cover it.
type OnBenefitExhausted interface {
	Plugin
	OnBenefitExhausted(ctx context.Context, c *claim.Claim) error
}

// OnAdvisorFailed is called when the clinical advisor could not produce an
// opinion and the claim stays pending.
type OnAdvisorFailed interface {
	Plugin
	OnAdvisorFailed(ctx context.Context, c *claim.Claim, err error) error
}

// ──────────────────────────────────────────────────
// Audit hooks
// ──────────────────────────────────────────────────

// OnTransition receives every status change with its audit entry.
type OnTransition interface {
	Plugin
	OnTransition(ctx context.Context, c *claim.Claim, entry *claim.AuditEntry) error
}

// OnTransitionRejected receives every transition a guard refused.
type OnTransitionRejected interface {
	Plugin
	OnTransitionRejected(ctx context.Context, c *claim.Claim, entry *claim.AuditEntry) error
}
