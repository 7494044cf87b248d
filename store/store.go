// Package store defines the unified persistence interface for claims,
// audit trails and benefit usage. Backends live in the subpackages.
package store

import (
	"context"

	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/claim"
)

// Store is implemented by every backend. Claim writes and usage writes are
// both compare-and-set on a version column, so backends need no
// cross-row transactions.
type Store interface {
	claim.Store
	benefit.Store

	// Migrate creates or upgrades the backend schema.
	Migrate(ctx context.Context) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}
