package audithook

import (
	"log/slog"
	"time"
)

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions sets which actions to audit.
// If not called, all actions are audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool)
		for _, action := range actions {
			e.enabled[action] = true
		}
	}
}

// WithDisabledActions sets which actions to skip.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = make(map[string]bool)
			for _, action := range allActions() {
				e.enabled[action] = true
			}
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

// WithRetry sets how many times a failed Record is attempted and the first
// backoff interval.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(e *Extension) {
		if maxTries > 0 {
			e.maxTries = maxTries
		}
		if initial > 0 {
			e.initial = initial
		}
	}
}

// WithQueueSize sets how many events may wait for delivery before new ones
// are dropped.
func WithQueueSize(n int) Option {
	return func(e *Extension) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// allActions returns all known audit actions.
func allActions() []string {
	return []string{
		ActionClaimSubmitted,
		ActionClaimApproved,
		ActionClaimDenied,
		ActionClaimReview,
		ActionClaimVoided,
		ActionAppealOpened,
		ActionAdvisorFailed,
		ActionBenefitExhausted,
		ActionTransition,
		ActionTransitionRejected,
	}
}
