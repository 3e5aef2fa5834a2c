package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "ccns/pkg/domain-errors"
)

// AddressLength is the byte length of an account or contract address.
const AddressLength = 20

// Address identifies an account or contract on a chain.
// Invariant: the zero value is the "unset" sentinel and never a valid owner.
type Address [AddressLength]byte

// ZeroAddress is returned by lookups for names that were never set.
var ZeroAddress Address

// ParseAddress parses a 0x-prefixed, 40 hex digit address. Parsing is
// case-insensitive; checksum casing is not enforced on input.
//
// Errors: returns CodeBadRequest for malformed input. The zero address parses
// successfully; callers that need an owner check IsZero.
func ParseAddress(s string) (Address, error) {
	var a Address
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return a, dErrors.New(dErrors.CodeBadRequest, "address must be 0x-prefixed")
	}
	raw := s[2:]
	if len(raw) != 2*AddressLength {
		return a, dErrors.New(dErrors.CodeBadRequest, "address must be 20 bytes")
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return Address{}, dErrors.New(dErrors.CodeBadRequest, "address must be hex encoded")
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NewRandomAddress returns an address drawn from crypto/rand. Used by the
// local simulator and tests to mint deployment addresses.
func NewRandomAddress() Address {
	var a Address
	if _, err := rand.Read(a[:]); err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is the unset sentinel.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// String returns the EIP-55 mixed-case checksum encoding.
func (a Address) String() string {
	lower := hex.EncodeToString(a[:])

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - ('a' - 'A')
		}
	}
	return "0x" + string(out)
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
