package adjudicator

import (
	"log/slog"
	"time"

	"github.com/xraph/adjudicator/lifecycle"
	"github.com/xraph/adjudicator/member"
	"github.com/xraph/adjudicator/plugin"
	"github.com/xraph/adjudicator/risk"
)

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithIdentityVerifier sets the step-up verifier used by Void. Without one
// every void fails with ErrVerificationRequired.
func WithIdentityVerifier(v lifecycle.IdentityVerifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithDirectory sets the member directory. With a directory, dependents
// draw from their principal's benefit pool and inactive members cannot
// submit claims.
func WithDirectory(d member.Directory) Option {
	return func(e *Engine) { e.directory = d }
}

// WithHighRiskThreshold sets the risk score at or above which claims go to
// manual review.
func WithHighRiskThreshold(score int) Option {
	return func(e *Engine) { e.thresholds.HighRisk = score }
}

// WithAutoApprovalConfidence sets the advisor confidence below which an
// approval is downgraded to review.
func WithAutoApprovalConfidence(confidence int) Option {
	return func(e *Engine) { e.thresholds.AutoApprovalConfidence = confidence }
}

// WithRiskConfig replaces the risk heuristics' configuration.
func WithRiskConfig(cfg risk.Config) Option {
	return func(e *Engine) { e.riskConfig = cfg }
}

// WithAdvisorTimeout bounds each advisor call.
func WithAdvisorTimeout(d time.Duration) Option {
	return func(e *Engine) { e.advisorTimeout = d }
}

// WithAdvisorRetries sets how many times the advisor is tried per
// adjudication. 1 disables retries.
func WithAdvisorRetries(tries uint) Option {
	return func(e *Engine) { e.advisorTries = tries }
}

// WithLedgerRetries bounds compare-and-set attempts on a usage row.
func WithLedgerRetries(n int) Option {
	return func(e *Engine) { e.ledgerRetries = n }
}

// WithVoidTimeout sets how long an unfinished void request blocks others
// on the same claim.
func WithVoidTimeout(d time.Duration) Option {
	return func(e *Engine) { e.voidTimeout = d }
}

// WithClock overrides the time source. Used by tests and simulations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}
