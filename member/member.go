// Package member models insured members and their dependents.
package member

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Relationship tags a dependent's relation to the principal member.
type Relationship string

const (
	RelationshipSelf    Relationship = "self"
	RelationshipSpouse  Relationship = "spouse"
	RelationshipChild   Relationship = "child"
	RelationshipParent  Relationship = "parent"
	RelationshipPartner Relationship = "partner"
	RelationshipOther   Relationship = "other"
)

// Member is an insured person. A principal lists its dependents; a
// dependent points back at its principal and never has dependents itself.
type Member struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	SchemeID     string       `json:"scheme_id" yaml:"scheme_id"`
	Relationship Relationship `json:"relationship" yaml:"relationship"`
	PrincipalID  string       `json:"principal_id,omitempty" yaml:"principal_id,omitempty"`
	Active       bool         `json:"active" yaml:"active"`
	Dependents   []Member     `json:"dependents,omitempty" yaml:"dependents,omitempty"`
}

var (
	ErrNotFound        = errors.New("member: not found")
	ErrNestedDependent = errors.New("member: a dependent cannot have dependents")
	ErrDuplicateMember = errors.New("member: duplicate member id")
	ErrInvalidMember   = errors.New("member: invalid member")
)

// IsDependent reports whether m is attached to a principal.
func (m *Member) IsDependent() bool {
	return m.PrincipalID != "" || (m.Relationship != "" && m.Relationship != RelationshipSelf)
}

// PoolOwner returns the member whose benefit pool m draws from.
func (m *Member) PoolOwner() string {
	if m.PrincipalID != "" {
		return m.PrincipalID
	}
	return m.ID
}

// Validate checks a principal and its dependents.
func (m *Member) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidMember)
	}
	if m.IsDependent() && len(m.Dependents) > 0 {
		return fmt.Errorf("%w: %s", ErrNestedDependent, m.ID)
	}
	seen := map[string]bool{m.ID: true}
	for i := range m.Dependents {
		d := &m.Dependents[i]
		if d.ID == "" {
			return fmt.Errorf("%w: dependent %d of %s has no id", ErrInvalidMember, i, m.ID)
		}
		if len(d.Dependents) > 0 {
			return fmt.Errorf("%w: %s", ErrNestedDependent, d.ID)
		}
		if d.PrincipalID != "" && d.PrincipalID != m.ID {
			return fmt.Errorf("%w: dependent %s names principal %s, expected %s", ErrInvalidMember, d.ID, d.PrincipalID, m.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateMember, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// Directory resolves member identities. Implementations usually wrap the
// membership system of record.
type Directory interface {
	Lookup(ctx context.Context, memberID string) (*Member, error)
}

// StaticDirectory is an in-memory Directory indexing principals and their
// dependents.
type StaticDirectory struct {
	mu      sync.RWMutex
	members map[string]*Member
}

// NewStaticDirectory builds a directory from principal members.
func NewStaticDirectory(principals ...Member) (*StaticDirectory, error) {
	d := &StaticDirectory{members: make(map[string]*Member)}
	for _, p := range principals {
		if err := d.Add(p); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add validates and indexes a principal and each of its dependents.
func (d *StaticDirectory) Add(principal Member) error {
	if err := principal.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.members[principal.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMember, principal.ID)
	}
	for _, dep := range principal.Dependents {
		if _, ok := d.members[dep.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateMember, dep.ID)
		}
	}

	p := principal
	if p.Relationship == "" {
		p.Relationship = RelationshipSelf
	}
	d.members[p.ID] = &p
	for i := range p.Dependents {
		dep := p.Dependents[i]
		dep.PrincipalID = p.ID
		d.members[dep.ID] = &dep
	}
	return nil
}

// Lookup returns a copy of the member with the given ID.
func (d *StaticDirectory) Lookup(_ context.Context, memberID string) (*Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.members[memberID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, memberID)
	}
	cp := *m
	return &cp, nil
}
