package benefit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/types"
)

var (
	// ErrInsufficientBenefit is returned when a commit would exceed the limit.
	ErrInsufficientBenefit = errors.New("benefit: insufficient benefit")
	// ErrReversalExceedsUsage is returned when a reversal would drive usage negative.
	ErrReversalExceedsUsage = errors.New("benefit: reversal exceeds usage")
	// ErrInvariantViolation means stored usage already exceeds its limit.
	ErrInvariantViolation = errors.New("benefit: usage above limit")
	// ErrContention is returned when compare-and-set retries are exhausted.
	ErrContention = errors.New("benefit: too much contention on usage row")
	// ErrInvalidAmount is returned for negative or mismatched-currency amounts.
	ErrInvalidAmount = errors.New("benefit: invalid amount")

	// Store-level errors.
	ErrVersionConflict = errors.New("benefit: usage version conflict")
	ErrUsageNotFound   = errors.New("benefit: usage not found")
	ErrEntryNotFound   = errors.New("benefit: entry not found")
	ErrDuplicateEntry  = errors.New("benefit: duplicate entry")
)

// DefaultMaxRetries bounds compare-and-set attempts per mutation.
const DefaultMaxRetries = 16

// Limits resolves the periodic limit for a category and period. A catalog
// snapshot satisfies it.
type Limits interface {
	LimitFor(categoryID, periodKey string) (types.Money, error)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMaxRetries sets the compare-and-set retry bound.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

// Ledger is the only writer of usage. Every mutation is a compare-and-set on
// the usage row's version, so writers to the same row serialize by retrying
// while writers to different rows never wait on each other.
type Ledger struct {
	store      Store
	logger     *slog.Logger
	maxRetries int
}

// NewLedger creates a ledger over s.
func NewLedger(s Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:      s,
		logger:     slog.Default(),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CurrentUsage returns the usage recorded for key, zero if none.
func (l *Ledger) CurrentUsage(ctx context.Context, key Key, currency string) (types.Money, error) {
	rec, err := l.store.GetUsage(ctx, key)
	if err != nil {
		if errors.Is(err, ErrUsageNotFound) {
			return types.Zero(currency), nil
		}
		return types.Money{}, err
	}
	return rec.Used, nil
}

// ReserveAndCommit adds amount to key's usage if the result stays within
// the limit. The limit is checked inside the compare-and-set step against
// the latest stored value. A repeated call with the same reference returns
// the original entry without touching usage.
func (l *Ledger) ReserveAndCommit(ctx context.Context, limits Limits, key Key, amount types.Money, reference string) (*Entry, error) {
	if prior, err := l.priorEntry(ctx, reference, EntryCommit); prior != nil || err != nil {
		return prior, err
	}
	limit, err := limits.LimitFor(key.CategoryID, key.PeriodKey)
	if err != nil {
		return nil, err
	}
	if err := checkAmount(amount, limit.Currency); err != nil {
		return nil, err
	}

	rec, err := l.update(ctx, key, limit.Currency, func(used types.Money) (types.Money, error) {
		if used.GreaterThan(limit) {
			l.logger.Error("benefit usage above limit",
				"key", key.String(),
				"used", used.Amount,
				"limit", limit.Amount,
			)
			return types.Money{}, fmt.Errorf("%w: %s used %s of %s", ErrInvariantViolation, key, used, limit)
		}
		if used.IsNegative() {
			l.logger.Error("benefit usage below zero",
				"key", key.String(),
				"used", used.Amount,
			)
			return types.Money{}, fmt.Errorf("%w: %s used %s", ErrInvariantViolation, key, used)
		}
		// 0 <= used <= limit, so neither the subtraction nor the sum below
		// can overflow once amount fits in what remains.
		remaining := limit.Subtract(used)
		if amount.GreaterThan(remaining) {
			return types.Money{}, fmt.Errorf("%w: %s requested, %s remaining in %s",
				ErrInsufficientBenefit, amount, remaining, key)
		}
		return used.Add(amount), nil
	})
	if err != nil {
		return nil, err
	}

	return l.journal(ctx, key, EntryCommit, reference, amount, rec.Used, amount.Negate())
}

// Reverse subtracts amount from key's usage. It fails with
// ErrReversalExceedsUsage rather than clamping at zero.
func (l *Ledger) Reverse(ctx context.Context, key Key, amount types.Money, reference string) (*Entry, error) {
	if prior, err := l.priorEntry(ctx, reference, EntryReversal); prior != nil || err != nil {
		return prior, err
	}
	if err := checkAmount(amount, amount.Currency); err != nil {
		return nil, err
	}

	rec, err := l.update(ctx, key, amount.Currency, func(used types.Money) (types.Money, error) {
		next := used.Subtract(amount)
		if next.IsNegative() {
			l.logger.Error("benefit reversal exceeds usage",
				"key", key.String(),
				"used", used.Amount,
				"reversal", amount.Amount,
			)
			return types.Money{}, fmt.Errorf("%w: reversing %s from %s in %s", ErrReversalExceedsUsage, amount, used, key)
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	return l.journal(ctx, key, EntryReversal, reference, amount, rec.Used, amount)
}

// Usage reports current-period usage for every category in snap. A period
// with no row reads as zero. Categories whose coverage does not include at
// are omitted.
func (l *Ledger) Usage(ctx context.Context, memberID string, snap *catalog.Snapshot, at time.Time) ([]Summary, error) {
	cats := snap.CategoryList()
	out := make([]Summary, 0, len(cats))
	for i := range cats {
		cat := &cats[i]
		periodKey, err := cat.PeriodKey(at)
		if err != nil {
			if errors.Is(err, catalog.ErrOutsideCoverage) {
				continue
			}
			return nil, err
		}
		used, err := l.CurrentUsage(ctx, Key{MemberID: memberID, CategoryID: cat.ID, PeriodKey: periodKey}, snap.Currency)
		if err != nil {
			return nil, err
		}
		remaining := cat.PeriodicLimit.Subtract(used)
		if remaining.IsNegative() {
			remaining = types.Zero(snap.Currency)
		}
		out = append(out, Summary{
			CategoryID: cat.ID,
			PeriodKey:  periodKey,
			Used:       used,
			Limit:      cat.PeriodicLimit,
			Remaining:  remaining,
		})
	}
	return out, nil
}

// Entry returns the journal entry of kind recorded under reference, or nil
// when there is none.
func (l *Ledger) Entry(ctx context.Context, reference string, kind EntryKind) (*Entry, error) {
	return l.priorEntry(ctx, reference, kind)
}

func (l *Ledger) priorEntry(ctx context.Context, reference string, kind EntryKind) (*Entry, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidAmount)
	}
	prior, err := l.store.GetEntry(ctx, reference, kind)
	if err == nil {
		return prior, nil
	}
	if errors.Is(err, ErrEntryNotFound) {
		return nil, nil
	}
	return nil, err
}

// update runs one compare-and-set mutation of key, retrying on version
// conflicts. fn receives the latest stored usage.
func (l *Ledger) update(ctx context.Context, key Key, currency string, fn func(types.Money) (types.Money, error)) (*UsageRecord, error) {
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		used := types.Zero(currency)
		var expected int64
		rec, err := l.store.GetUsage(ctx, key)
		switch {
		case err == nil:
			used, expected = rec.Used, rec.Version
		case errors.Is(err, ErrUsageNotFound):
		default:
			return nil, err
		}

		next, err := fn(used)
		if err != nil {
			return nil, err
		}

		out := &UsageRecord{Key: key, Used: next, UpdatedAt: time.Now().UTC()}
		err = l.store.CompareAndSwapUsage(ctx, out, expected)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		l.logger.Debug("benefit usage conflict, retrying",
			"key", key.String(),
			"attempt", attempt,
		)
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrContention, key, l.maxRetries)
}

// journal records the entry for a completed mutation. If the entry cannot
// be written the mutation is undone by applying undo, so usage and journal
// never disagree about whether a reference was applied.
func (l *Ledger) journal(ctx context.Context, key Key, kind EntryKind, reference string, amount, after, undo types.Money) (*Entry, error) {
	entry := &Entry{
		ID:         id.NewBenefitEntryID(),
		Key:        key,
		Kind:       kind,
		Reference:  reference,
		Amount:     amount,
		UsageAfter: after,
		CreatedAt:  time.Now().UTC(),
	}
	err := l.store.AppendEntry(ctx, entry)
	if err == nil {
		return entry, nil
	}

	if _, cerr := l.update(context.WithoutCancel(ctx), key, amount.Currency, func(used types.Money) (types.Money, error) {
		return used.Add(undo), nil
	}); cerr != nil {
		l.logger.Error("benefit compensation failed",
			"key", key.String(),
			"reference", reference,
			"kind", string(kind),
			"error", cerr,
		)
	}

	if errors.Is(err, ErrDuplicateEntry) {
		return l.store.GetEntry(ctx, reference, kind)
	}
	return nil, fmt.Errorf("benefit: journal %s %s: %w", kind, reference, err)
}

func checkAmount(amount types.Money, currency string) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, amount)
	}
	if amount.Currency != currency {
		return fmt.Errorf("%w: currency %q, expected %q", ErrInvalidAmount, amount.Currency, currency)
	}
	return nil
}
