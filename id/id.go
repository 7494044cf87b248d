// Package id defines TypeID-based identifiers for adjudication records.
//
// Claims, decisions, void requests, appeals, audit entries and benefit
// journal entries each carry an ID of the form "prefix_suffix". IDs are
// K-sortable (UUIDv7-based) and globally unique. Member and provider
// identifiers come from external systems and stay plain strings.
package id

import (
	"errors"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record type encoded in a TypeID.
type Prefix string

// Prefix constants for adjudication record types.
const (
	PrefixClaim        Prefix = "clm"  // Submitted claim
	PrefixDecision     Prefix = "dec"  // Decision record
	PrefixVoidRequest  Prefix = "vreq" // Void request
	PrefixAppeal       Prefix = "apl"  // Appeal of a denied claim
	PrefixAudit        Prefix = "aud"  // Audit log entry
	PrefixBenefitEntry Prefix = "bent" // Benefit ledger journal entry
)

// ID wraps a TypeID. The zero value is Nil and renders as "".
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	tid typeid.TypeID
	ok  bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates an ID. An invalid prefix is a programming error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{tid: tid, ok: true}
}

// Parse accepts any valid TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, errors.New("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, ok: true}, nil
}

// ParseWithPrefix is Parse plus a prefix check, so a void request ID can
// never be accepted where a claim ID is expected.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q has prefix %q, want %q", s, got, want)
	}
	return parsed, nil
}

// Aliases document which record an ID field refers to.
type (
	ClaimID        = ID
	DecisionID     = ID
	VoidRequestID  = ID
	AppealID       = ID
	AuditID        = ID
	BenefitEntryID = ID
)

func NewClaimID() ID        { return New(PrefixClaim) }
func NewDecisionID() ID     { return New(PrefixDecision) }
func NewVoidRequestID() ID  { return New(PrefixVoidRequest) }
func NewAppealID() ID       { return New(PrefixAppeal) }
func NewAuditID() ID        { return New(PrefixAudit) }
func NewBenefitEntryID() ID { return New(PrefixBenefitEntry) }

func ParseClaimID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixClaim) }
func ParseDecisionID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixDecision) }
func ParseVoidRequestID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixVoidRequest) }
func ParseAppealID(s string) (ID, error)       { return ParseWithPrefix(s, PrefixAppeal) }
func ParseAuditID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixAudit) }
func ParseBenefitEntryID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBenefitEntry) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.ok {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the record-type prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.ok {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.ok }

// MarshalText implements encoding.TextMarshaler. Nil encodes as empty text.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
