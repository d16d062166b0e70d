// Package domain holds the typed identifiers shared across modules.
//
// Each identifier wraps a UUID so that a bulletin id can never be passed where
// an agency id is expected. Parsing happens once at the trust boundary; inside
// the service everything is typed.
package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "apb/pkg/domain-errors"
)

type (
	UserID       uuid.UUID
	AgencyID     uuid.UUID
	BulletinID   uuid.UUID
	ConnectionID uuid.UUID
)

// maxIDLength bounds input before it reaches the UUID parser. The longest
// accepted form is the urn:uuid: prefixed one.
const maxIDLength = 45

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength || !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseAgencyID(s string) (AgencyID, error) {
	u, err := parseUUID("agency id", s)
	return AgencyID(u), err
}

func ParseBulletinID(s string) (BulletinID, error) {
	u, err := parseUUID("bulletin id", s)
	return BulletinID(u), err
}

func ParseConnectionID(s string) (ConnectionID, error) {
	u, err := parseUUID("connection id", s)
	return ConnectionID(u), err
}

func NewUserID() UserID             { return UserID(uuid.New()) }
func NewAgencyID() AgencyID         { return AgencyID(uuid.New()) }
func NewBulletinID() BulletinID     { return BulletinID(uuid.New()) }
func NewConnectionID() ConnectionID { return ConnectionID(uuid.New()) }

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id AgencyID) String() string     { return uuid.UUID(id).String() }
func (id BulletinID) String() string   { return uuid.UUID(id).String() }
func (id ConnectionID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AgencyID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id BulletinID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ConnectionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshalling lets ids travel as plain strings in JSON bodies, JSON map
// keys and database rows.

func (id UserID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id AgencyID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id BulletinID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AgencyID) UnmarshalText(b []byte) error {
	parsed, err := ParseAgencyID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *BulletinID) UnmarshalText(b []byte) error {
	parsed, err := ParseBulletinID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseAgencyIDs parses a list of raw agency ids, failing on the first bad one.
func ParseAgencyIDs(raw []string) ([]AgencyID, error) {
	out := make([]AgencyID, 0, len(raw))
	for _, s := range raw {
		id, err := ParseAgencyID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// AgencyStrings renders agency ids for storage drivers that take string arrays.
func AgencyStrings(ids []AgencyID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
