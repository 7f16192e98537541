package types

import (
	"time"

	"github.com/google/uuid"
)

// NewCaseID generates a UUIDv7 case identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages and
// make id DESC ordering newest-first.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewCaseID() CaseID {
	return CaseID(uuid.Must(uuid.NewV7()).String())
}

// NewContactID generates a UUIDv7 contact identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewContactID() ContactID {
	return ContactID(uuid.Must(uuid.NewV7()).String())
}

// NewSectionID generates a UUIDv7 identifier for a case section row.
func NewSectionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseCaseID validates and converts a string to CaseID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseCaseID(s string) (CaseID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return CaseID(s), nil
}

// CaseIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func CaseIDTime(id CaseID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
