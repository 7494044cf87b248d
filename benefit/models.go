// Package benefit implements the benefit ledger: per-member, per-category
// usage totals checked against periodic limits.
package benefit

import (
	"time"

	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/types"
)

// Key addresses one usage row. Each period is its own row, so a new period
// starts at zero without touching history.
type Key struct {
	MemberID   string `json:"member_id"`
	CategoryID string `json:"category_id"`
	PeriodKey  string `json:"period_key"`
}

func (k Key) String() string {
	return k.MemberID + "/" + k.CategoryID + "/" + k.PeriodKey
}

// UsageRecord is the running total for a Key. Version increments on every
// successful write and is the compare-and-set token.
type UsageRecord struct {
	Key
	Used      types.Money `json:"used"`
	Version   int64       `json:"version"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// EntryKind distinguishes commits from reversals in the journal.
type EntryKind string

const (
	EntryCommit   EntryKind = "commit"
	EntryReversal EntryKind = "reversal"
)

// Entry is an immutable journal line written after each usage mutation.
// (Reference, Kind) is unique, which makes retried mutations idempotent.
type Entry struct {
	ID         id.BenefitEntryID `json:"id"`
	Key        Key               `json:"key"`
	Kind       EntryKind         `json:"kind"`
	Reference  string            `json:"reference"`
	Amount     types.Money       `json:"amount"`
	UsageAfter types.Money       `json:"usage_after"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Summary reports a category's usage in its current period.
type Summary struct {
	CategoryID string      `json:"category_id"`
	PeriodKey  string      `json:"period_key"`
	Used       types.Money `json:"used"`
	Limit      types.Money `json:"limit"`
	Remaining  types.Money `json:"remaining"`
}
