package types

import (
	"fmt"
	"regexp"
)

// NationalID represents a government identification number used to
// correlate a local patient with an account in the national identity
// registry. Issuing countries use 9 to 13 digit formats, so only the
// digit shape is validated here; the registry is authoritative for
// existence.
type NationalID string

var nationalIDRegex = regexp.MustCompile(`^\d{9,13}$`)

// ParseNationalID validates and parses an identity key string
func ParseNationalID(s string) (NationalID, error) {
	if !nationalIDRegex.MatchString(s) {
		return "", fmt.Errorf("identity key must be 9 to 13 digits")
	}
	return NationalID(s), nil
}

// String returns the string representation
func (n NationalID) String() string {
	return string(n)
}

// Masked returns a masked version for display and logs (first 3 digits visible)
func (n NationalID) Masked() string {
	if len(n) < 4 {
		return "*********"
	}
	masked := make([]byte, len(n))
	copy(masked, n[:3])
	for i := 3; i < len(n); i++ {
		masked[i] = '*'
	}
	return string(masked)
}

// IsZero checks if the identity key is empty
func (n NationalID) IsZero() bool {
	return n == ""
}
