package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// FuzzParseName checks that parsing never panics and that every accepted
// name carries the suffix and is valid UTF-8.
func FuzzParseName(f *testing.F) {
	f.Add("")
	f.Add("alice.ccns")
	f.Add(".ccns")
	f.Add("bob")
	f.Add("a\x00.ccns")
	f.Add(string([]byte{0xff, 0xfe}) + ".ccns")

	f.Fuzz(func(t *testing.T, input string) {
		n, err := ParseName(input)
		if err != nil {
			return
		}
		if !strings.HasSuffix(string(n), NameSuffix) {
			t.Errorf("accepted name without suffix: %q", input)
		}
		if !utf8.ValidString(input) {
			t.Errorf("accepted non-UTF8 name: %q", input)
		}
		if string(n) != input {
			t.Errorf("name was normalized: %q -> %q", input, n)
		}
	})
}

// FuzzParseAddress checks that accepted addresses round-trip through String.
func FuzzParseAddress(f *testing.F) {
	f.Add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	f.Add("0x0000000000000000000000000000000000000000")
	f.Add("0x")
	f.Add("not-an-address")

	f.Fuzz(func(t *testing.T, input string) {
		a, err := ParseAddress(input)
		if err != nil {
			return
		}
		again, err := ParseAddress(a.String())
		if err != nil {
			t.Fatalf("checksummed form failed to parse: %v", err)
		}
		if again != a {
			t.Error("round-trip changed address")
		}
	})
}
