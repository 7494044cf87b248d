package claim

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/adjudicator/id"
)

var (
	ErrNotFound         = errors.New("claim: not found")
	ErrDuplicateKey     = errors.New("claim: idempotency key already used")
	ErrVersionConflict  = errors.New("claim: version conflict")
	ErrAuditSeqConflict = errors.New("claim: audit sequence conflict")
)

// Store persists claims and their audit trail.
type Store interface {
	// CreateClaim inserts a claim at version 1. It returns ErrDuplicateKey
	// if another claim holds the same idempotency key.
	CreateClaim(ctx context.Context, c *Claim) error

	GetClaim(ctx context.Context, claimID id.ClaimID) (*Claim, error)
	GetClaimByIdempotencyKey(ctx context.Context, key string) (*Claim, error)

	// UpdateClaim replaces the claim if its stored version equals
	// expectedVersion and sets c.Version to expectedVersion+1. A mismatch
	// returns ErrVersionConflict.
	UpdateClaim(ctx context.Context, c *Claim, expectedVersion int64) error

	// ListClaimsByMember returns the member's claims with a service date at
	// or after since, oldest first.
	ListClaimsByMember(ctx context.Context, memberID string, since time.Time) ([]*Claim, error)

	// ListClaimsByProvider returns the provider's claims with a service date
	// at or after since, oldest first.
	ListClaimsByProvider(ctx context.Context, providerID string, since time.Time) ([]*Claim, error)

	// AppendAudit assigns e.Seq as the next sequence number for the claim.
	AppendAudit(ctx context.Context, e *AuditEntry) error

	// ListAudit returns a claim's audit trail in sequence order.
	ListAudit(ctx context.Context, claimID id.ClaimID) ([]*AuditEntry, error)
}
