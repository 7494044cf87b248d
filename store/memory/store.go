// Package memory is an in-process Store for tests and single-node
// deployments. Records are cloned on the way in and out so callers never
// share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/id"
	"github.com/xraph/adjudicator/store"
)

var _ store.Store = (*Store)(nil)

type entryKey struct {
	reference string
	kind      benefit.EntryKind
}

type Store struct {
	mu sync.RWMutex

	// Claim storage
	claims      map[string]*claim.Claim
	idempotency map[string]string

	// Audit trail, per claim in sequence order
	audit map[string][]*claim.AuditEntry

	// Benefit usage rows and journal
	usage   map[benefit.Key]*benefit.UsageRecord
	entries map[entryKey]*benefit.Entry
}

func New() *Store {
	return &Store{
		claims:      make(map[string]*claim.Claim),
		idempotency: make(map[string]string),
		audit:       make(map[string][]*claim.AuditEntry),
		usage:       make(map[benefit.Key]*benefit.UsageRecord),
		entries:     make(map[entryKey]*benefit.Entry),
	}
}

// Claim Store implementation
func (s *Store) CreateClaim(_ context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.IdempotencyKey != "" {
		if _, exists := s.idempotency[c.IdempotencyKey]; exists {
			return claim.ErrDuplicateKey
		}
	}
	if _, exists := s.claims[c.ID.String()]; exists {
		return fmt.Errorf("memory: claim %s already exists", c.ID)
	}
	c.Version = 1
	s.claims[c.ID.String()] = c.Clone()
	if c.IdempotencyKey != "" {
		s.idempotency[c.IdempotencyKey] = c.ID.String()
	}
	return nil
}

func (s *Store) GetClaim(_ context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.claims[claimID.String()]; ok {
		return c.Clone(), nil
	}
	return nil, claim.ErrNotFound
}

func (s *Store) GetClaimByIdempotencyKey(_ context.Context, key string) (*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cid, ok := s.idempotency[key]; ok {
		return s.claims[cid].Clone(), nil
	}
	return nil, claim.ErrNotFound
}

func (s *Store) UpdateClaim(_ context.Context, c *claim.Claim, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.claims[c.ID.String()]
	if !ok {
		return claim.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return claim.ErrVersionConflict
	}
	c.Version = expectedVersion + 1
	s.claims[c.ID.String()] = c.Clone()
	return nil
}

func (s *Store) ListClaimsByMember(_ context.Context, memberID string, since time.Time) ([]*claim.Claim, error) {
	return s.listClaims(func(c *claim.Claim) bool { return c.MemberID == memberID }, since), nil
}

func (s *Store) ListClaimsByProvider(_ context.Context, providerID string, since time.Time) ([]*claim.Claim, error) {
	return s.listClaims(func(c *claim.Claim) bool { return c.ProviderID == providerID }, since), nil
}

func (s *Store) listClaims(match func(*claim.Claim) bool, since time.Time) []*claim.Claim {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*claim.Claim, 0)
	for _, c := range s.claims {
		if match(c) && !c.ServiceDate.Before(since) {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ServiceDate.Equal(result[j].ServiceDate) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].ServiceDate.Before(result[j].ServiceDate)
	})
	return result
}

// Audit Store implementation
func (s *Store) AppendAudit(_ context.Context, e *claim.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trail := s.audit[e.ClaimID.String()]
	e.Seq = int64(len(trail)) + 1
	cp := *e
	s.audit[e.ClaimID.String()] = append(trail, &cp)
	return nil
}

func (s *Store) ListAudit(_ context.Context, claimID id.ClaimID) ([]*claim.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := s.audit[claimID.String()]
	result := make([]*claim.AuditEntry, len(trail))
	for i, e := range trail {
		cp := *e
		result[i] = &cp
	}
	return result, nil
}

// Benefit Store implementation
func (s *Store) GetUsage(_ context.Context, key benefit.Key) (*benefit.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.usage[key]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, benefit.ErrUsageNotFound
}

func (s *Store) CompareAndSwapUsage(_ context.Context, rec *benefit.UsageRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if cur, ok := s.usage[rec.Key]; ok {
		current = cur.Version
	}
	if current != expectedVersion {
		return benefit.ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	cp := *rec
	s.usage[rec.Key] = &cp
	return nil
}

func (s *Store) ListUsage(_ context.Context, memberID string) ([]*benefit.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*benefit.UsageRecord, 0)
	for _, rec := range s.usage {
		if rec.MemberID == memberID {
			cp := *rec
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key.String() < result[j].Key.String() })
	return result, nil
}

func (s *Store) AppendEntry(_ context.Context, e *benefit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entryKey{reference: e.Reference, kind: e.Kind}
	if _, exists := s.entries[k]; exists {
		return benefit.ErrDuplicateEntry
	}
	cp := *e
	s.entries[k] = &cp
	return nil
}

func (s *Store) GetEntry(_ context.Context, reference string, kind benefit.EntryKind) (*benefit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[entryKey{reference: reference, kind: kind}]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, benefit.ErrEntryNotFound
}

// Entries returns the full journal ordered by creation time.
func (s *Store) Entries() []*benefit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*benefit.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }
