package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/adjudicator/claim"
)

// ErrAdvisorUnavailable is returned when the clinical decision advisor
// cannot produce an opinion. It is never converted into a verdict.
var ErrAdvisorUnavailable = errors.New("decision: clinical decision advisor unavailable")

// Opinion is the clinical decision advisor's view of a claim.
type Opinion struct {
	Verdict    claim.Verdict `json:"verdict"`
	Confidence int           `json:"confidence"`
	Reasons    []string      `json:"reasons,omitempty"`
}

// Validate checks that the opinion is usable.
func (o Opinion) Validate() error {
	if !o.Verdict.Valid() {
		return fmt.Errorf("unknown verdict %q", o.Verdict)
	}
	if o.Confidence < 0 || o.Confidence > 100 {
		return fmt.Errorf("confidence %d outside 0..100", o.Confidence)
	}
	return nil
}

// Advisor evaluates a claim clinically. Implementations live outside the
// engine and may be slow or unreliable.
type Advisor interface {
	Evaluate(ctx context.Context, c *claim.Claim) (Opinion, error)
}

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(ctx context.Context, c *claim.Claim) (Opinion, error)

// Evaluate implements Advisor.
func (f AdvisorFunc) Evaluate(ctx context.Context, c *claim.Claim) (Opinion, error) {
	return f(ctx, c)
}

// RetryOption configures a RetryingAdvisor.
type RetryOption func(*RetryingAdvisor)

// WithAttemptTimeout bounds each advisor call.
func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(r *RetryingAdvisor) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxTries bounds the number of advisor calls.
func WithMaxTries(n uint) RetryOption {
	return func(r *RetryingAdvisor) {
		if n > 0 {
			r.maxTries = n
		}
	}
}

// WithBackoff sets the initial and maximum wait between attempts.
func WithBackoff(initial, maxInterval time.Duration) RetryOption {
	return func(r *RetryingAdvisor) {
		r.initial = initial
		r.maxInterval = maxInterval
	}
}

// WithRetryLogger sets the logger used for retry notices.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *RetryingAdvisor) { r.logger = logger }
}

// RetryingAdvisor wraps an Advisor with a per-attempt timeout and bounded
// exponential backoff. Every failure it returns wraps ErrAdvisorUnavailable.
type RetryingAdvisor struct {
	advisor     Advisor
	timeout     time.Duration
	maxTries    uint
	initial     time.Duration
	maxInterval time.Duration
	logger      *slog.Logger
}

// NewRetryingAdvisor wraps a.
func NewRetryingAdvisor(a Advisor, opts ...RetryOption) *RetryingAdvisor {
	r := &RetryingAdvisor{
		advisor:     a,
		timeout:     5 * time.Second,
		maxTries:    3,
		initial:     200 * time.Millisecond,
		maxInterval: 2 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluate implements Advisor.
func (r *RetryingAdvisor) Evaluate(ctx context.Context, c *claim.Claim) (Opinion, error) {
	attempt := 0
	op := func() (Opinion, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		opinion, err := r.advisor.Evaluate(actx, c)
		if err != nil {
			if ctx.Err() != nil {
				return Opinion{}, backoff.Permanent(ctx.Err())
			}
			return Opinion{}, err
		}
		if err := opinion.Validate(); err != nil {
			return Opinion{}, backoff.Permanent(fmt.Errorf("malformed opinion: %w", err))
		}
		return opinion, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initial
	eb.MaxInterval = r.maxInterval

	opinion, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Warn("advisor call failed, retrying",
				"claim_id", c.ID.String(),
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
		}),
	)
	if err != nil {
		return Opinion{}, fmt.Errorf("%w: %w", ErrAdvisorUnavailable, err)
	}
	return opinion, nil
}
