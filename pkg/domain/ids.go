// Package domain holds typed aggregate identifiers and closed domain enums.
// Typed IDs prevent cross-aggregate assignment at compile time; parse
// functions enforce validity at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "girok/pkg/domain-errors"
)

// Typed identifiers for the aggregates owned by this control plane. All are
// UUIDv7 at generation time; parsing accepts any valid non-nil UUID so that
// externally minted v4 identifiers (e.g., service registry entries) remain
// addressable.
type (
	AccountID  uuid.UUID
	SessionID  uuid.UUID
	SanctionID uuid.UUID
	DocumentID uuid.UUID
	LawID      uuid.UUID
	ConsentID  uuid.UUID
	DSRID      uuid.UUID
	ServiceID  uuid.UUID
)

func parse(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id cannot be nil")
	}
	return u, nil
}

func ParseAccountID(s string) (AccountID, error) {
	u, err := parse(s, "account")
	return AccountID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parse(s, "session")
	return SessionID(u), err
}

func ParseSanctionID(s string) (SanctionID, error) {
	u, err := parse(s, "sanction")
	return SanctionID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parse(s, "document")
	return DocumentID(u), err
}

func ParseLawID(s string) (LawID, error) {
	u, err := parse(s, "law")
	return LawID(u), err
}

func ParseConsentID(s string) (ConsentID, error) {
	u, err := parse(s, "consent")
	return ConsentID(u), err
}

func ParseDSRID(s string) (DSRID, error) {
	u, err := parse(s, "dsr request")
	return DSRID(u), err
}

func ParseServiceID(s string) (ServiceID, error) {
	u, err := parse(s, "service")
	return ServiceID(u), err
}

func (id AccountID) String() string  { return uuid.UUID(id).String() }
func (id SessionID) String() string  { return uuid.UUID(id).String() }
func (id SanctionID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id LawID) String() string      { return uuid.UUID(id).String() }
func (id ConsentID) String() string  { return uuid.UUID(id).String() }
func (id DSRID) String() string      { return uuid.UUID(id).String() }
func (id ServiceID) String() string  { return uuid.UUID(id).String() }

func (id AccountID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SanctionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DSRID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ServiceID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// SentinelAccountID is used when recording login attempts for emails that do
// not resolve to an account. It keeps the attempt path uniform without
// revealing whether the account exists.
var SentinelAccountID = AccountID(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
