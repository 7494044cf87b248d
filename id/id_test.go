package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/adjudicator/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
		prefix  string
	}{
		{"ClaimID", id.NewClaimID, id.ParseClaimID, "clm_"},
		{"DecisionID", id.NewDecisionID, id.ParseDecisionID, "dec_"},
		{"VoidRequestID", id.NewVoidRequestID, id.ParseVoidRequestID, "vreq_"},
		{"AppealID", id.NewAppealID, id.ParseAppealID, "apl_"},
		{"AuditID", id.NewAuditID, id.ParseAuditID, "aud_"},
		{"BenefitEntryID", id.NewBenefitEntryID, id.ParseBenefitEntryID, "bent_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			if !strings.HasPrefix(original.String(), tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, original.String())
			}
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseClaimID rejects apl_", id.NewAppealID().String(), id.ParseClaimID},
		{"ParseAppealID rejects clm_", id.NewClaimID().String(), id.ParseAppealID},
		{"ParseVoidRequestID rejects aud_", id.NewAuditID().String(), id.ParseVoidRequestID},
		{"ParseBenefitEntryID rejects dec_", id.NewDecisionID().String(), id.ParseBenefitEntryID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewClaimID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var empty id.ID
	if err := empty.UnmarshalText([]byte{}); err != nil {
		t.Fatalf("UnmarshalText(empty) failed: %v", err)
	}
	if !empty.IsNil() {
		t.Error("expected nil after unmarshalling empty text")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewClaimID()
	b := id.NewClaimID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewClaimID() calls returned the same ID: %q", a.String())
	}
}
