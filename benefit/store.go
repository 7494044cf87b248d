package benefit

import "context"

// Store persists usage rows and journal entries.
type Store interface {
	// GetUsage returns ErrUsageNotFound when the row has never been written.
	GetUsage(ctx context.Context, key Key) (*UsageRecord, error)

	// CompareAndSwapUsage writes rec if the stored version equals
	// expectedVersion, where 0 means the row must not exist yet. On success
	// rec.Version is expectedVersion+1. A mismatch returns ErrVersionConflict.
	CompareAndSwapUsage(ctx context.Context, rec *UsageRecord, expectedVersion int64) error

	// ListUsage returns every usage row for a member across periods.
	ListUsage(ctx context.Context, memberID string) ([]*UsageRecord, error)

	// AppendEntry returns ErrDuplicateEntry when (Reference, Kind) exists.
	AppendEntry(ctx context.Context, e *Entry) error

	// GetEntry returns ErrEntryNotFound when no entry matches.
	GetEntry(ctx context.Context, reference string, kind EntryKind) (*Entry, error)
}
