package catalog

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/adjudicator/types"
)

// Catalog publishes immutable snapshots. Readers never block: the current
// snapshot is swapped atomically and older versions stay addressable for
// claims pinned to them.
type Catalog struct {
	mu       sync.Mutex
	versions sync.Map // int -> *Snapshot
	latest   int
	current  atomic.Pointer[Snapshot]
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{}
}

// Publish validates s, assigns it the next version and makes it current.
// The catalog keeps its own copy; later changes to s have no effect.
func (c *Catalog) Publish(s Snapshot) (*Snapshot, error) {
	snap := s.clone()
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest++
	snap.Version = c.latest
	snap.PublishedAt = time.Now().UTC()
	c.versions.Store(snap.Version, snap)
	c.current.Store(snap)
	return snap, nil
}

// Current returns the most recently published snapshot.
func (c *Catalog) Current() (*Snapshot, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Snapshot returns a published version.
func (c *Catalog) Snapshot(version int) (*Snapshot, error) {
	v, ok := c.versions.Load(version)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
	}
	return v.(*Snapshot), nil
}

// ResolveCategory maps a service type to the category that pays for it.
func (s *Snapshot) ResolveCategory(serviceType string) (BenefitCategory, error) {
	catID, ok := s.Services[normalizeService(serviceType)]
	if !ok {
		return BenefitCategory{}, fmt.Errorf("%w: %q", ErrUnknownServiceType, serviceType)
	}
	return s.Category(catID)
}

// Category returns a category by ID.
func (s *Snapshot) Category(categoryID string) (BenefitCategory, error) {
	cat, ok := s.Categories[categoryID]
	if !ok {
		return BenefitCategory{}, fmt.Errorf("%w: %q", ErrUnknownCategory, categoryID)
	}
	return cat, nil
}

// LimitFor returns the periodic limit of a category for the given period.
func (s *Snapshot) LimitFor(categoryID, periodKey string) (types.Money, error) {
	cat, err := s.Category(categoryID)
	if err != nil {
		return types.Money{}, err
	}
	if _, err := cat.parseKey(periodKey); err != nil {
		return types.Money{}, err
	}
	return cat.PeriodicLimit, nil
}

// CategoryList returns categories ordered by ID.
func (s *Snapshot) CategoryList() []BenefitCategory {
	ids := slices.Sorted(maps.Keys(s.Categories))
	out := make([]BenefitCategory, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Categories[id])
	}
	return out
}

// Validate checks the snapshot's internal consistency.
func (s *Snapshot) Validate() error {
	if s.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidSnapshot)
	}
	if len(s.Categories) == 0 {
		return fmt.Errorf("%w: at least one category is required", ErrInvalidSnapshot)
	}
	for key, cat := range s.Categories {
		if cat.ID == "" || cat.ID != key {
			return fmt.Errorf("%w: category key %q does not match id %q", ErrInvalidSnapshot, key, cat.ID)
		}
		if cat.CoveragePercent < 0 || cat.CoveragePercent > 100 {
			return fmt.Errorf("%w: %s coverage %d outside 0..100", ErrInvalidSnapshot, cat.ID, cat.CoveragePercent)
		}
		if cat.PeriodicLimit.Currency != s.Currency {
			return fmt.Errorf("%w: %s limit currency %q, catalog currency %q",
				ErrInvalidSnapshot, cat.ID, cat.PeriodicLimit.Currency, s.Currency)
		}
		if cat.PeriodicLimit.IsNegative() {
			return fmt.Errorf("%w: %s has a negative limit", ErrInvalidSnapshot, cat.ID)
		}
		if cat.PeriodStart.IsZero() {
			return fmt.Errorf("%w: %s has no period start", ErrInvalidSnapshot, cat.ID)
		}
		if !cat.PeriodEnd.IsZero() && cat.PeriodEnd.Before(cat.PeriodStart) {
			return fmt.Errorf("%w: %s period ends before it starts", ErrInvalidSnapshot, cat.ID)
		}
		switch cat.ResetRule {
		case ResetAnnual, ResetRolling30Days:
		default:
			return fmt.Errorf("%w: %s has unknown reset rule %q", ErrInvalidSnapshot, cat.ID, cat.ResetRule)
		}
	}
	for service, catID := range s.Services {
		if _, ok := s.Categories[catID]; !ok {
			return fmt.Errorf("%w: service %q maps to unknown category %q", ErrInvalidSnapshot, service, catID)
		}
	}
	return nil
}

func (s Snapshot) clone() *Snapshot {
	out := s
	out.Currency = strings.ToLower(s.Currency)
	out.Categories = maps.Clone(s.Categories)
	out.Services = make(map[string]string, len(s.Services))
	for service, catID := range s.Services {
		out.Services[normalizeService(service)] = catID
	}
	return &out
}

func normalizeService(serviceType string) string {
	return strings.ToLower(strings.TrimSpace(serviceType))
}
