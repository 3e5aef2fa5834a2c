package domain

import (
	"strings"
	"unicode"

	dErrors "ccns/pkg/domain-errors"
)

// NameSuffix is the suffix every registrable name must carry.
const NameSuffix = ".ccns"

// Name is a registrable name.
// Invariant: ends with NameSuffix and contains only printable characters.
// Matching is case-sensitive and no normalization is applied.
//
// Usage: construct via ParseName at trust boundaries; direct casting bypasses
// validation and is reserved for stores reading back persisted values.
type Name string

// ParseName validates a name from external input.
//
// Errors: returns CodeInvalidName when the suffix is missing or the name
// contains non-printable characters. The bare suffix is a valid name.
func ParseName(s string) (Name, error) {
	if !strings.HasSuffix(s, NameSuffix) {
		return "", dErrors.New(dErrors.CodeInvalidName, "name must end with "+NameSuffix)
	}
	for _, r := range s {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return "", dErrors.New(dErrors.CodeInvalidName, "name must be printable")
		}
	}
	return Name(s), nil
}

func (n Name) String() string {
	return string(n)
}
