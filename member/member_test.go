package member

import (
	"context"
	"errors"
	"testing"
)

func family() Member {
	return Member{
		ID:       "mem-100",
		Name:     "Amina Otieno",
		SchemeID: "gold-family",
		Active:   true,
		Dependents: []Member{
			{ID: "mem-101", Name: "Brian Otieno", Relationship: RelationshipSpouse, Active: true},
			{ID: "mem-102", Name: "Zawadi Otieno", Relationship: RelationshipChild, Active: true},
		},
	}
}

func TestValidate(t *testing.T) {
	nested := family()
	nested.Dependents[1].Dependents = []Member{{ID: "mem-103", Relationship: RelationshipChild}}

	dup := family()
	dup.Dependents[1].ID = "mem-101"

	wrongPrincipal := family()
	wrongPrincipal.Dependents[0].PrincipalID = "mem-999"

	dependentWithDeps := Member{
		ID:           "mem-200",
		PrincipalID:  "mem-100",
		Relationship: RelationshipChild,
		Dependents:   []Member{{ID: "mem-201"}},
	}

	tests := []struct {
		name    string
		member  Member
		wantErr error
	}{
		{"valid family", family(), nil},
		{"missing id", Member{}, ErrInvalidMember},
		{"nested dependent", nested, ErrNestedDependent},
		{"dependent listing dependents", dependentWithDeps, ErrNestedDependent},
		{"duplicate dependent", dup, ErrDuplicateMember},
		{"foreign principal", wrongPrincipal, ErrInvalidMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.member.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStaticDirectory(t *testing.T) {
	dir, err := NewStaticDirectory(family())
	if err != nil {
		t.Fatalf("NewStaticDirectory: %v", err)
	}
	ctx := context.Background()

	principal, err := dir.Lookup(ctx, "mem-100")
	if err != nil {
		t.Fatalf("Lookup principal: %v", err)
	}
	if principal.IsDependent() {
		t.Error("principal reported as dependent")
	}
	if principal.PoolOwner() != "mem-100" {
		t.Errorf("PoolOwner: got %q, want mem-100", principal.PoolOwner())
	}

	child, err := dir.Lookup(ctx, "mem-102")
	if err != nil {
		t.Fatalf("Lookup dependent: %v", err)
	}
	if !child.IsDependent() {
		t.Error("dependent not reported as dependent")
	}
	if child.PoolOwner() != "mem-100" {
		t.Errorf("dependent PoolOwner: got %q, want mem-100", child.PoolOwner())
	}

	if _, err := dir.Lookup(ctx, "mem-404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := dir.Add(Member{ID: "mem-300", Dependents: []Member{{ID: "mem-101"}}}); !errors.Is(err, ErrDuplicateMember) {
		t.Errorf("expected ErrDuplicateMember for reused dependent id, got %v", err)
	}
}
