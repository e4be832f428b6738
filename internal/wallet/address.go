// Package wallet models the wallet-connect SDK as seen by memeindex: the
// connected account, its status stream, and the single process-wide
// connector instance.
package wallet

import (
	"strings"
	"unicode"

	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// maxAddressLen bounds what is accepted as an address string.
const maxAddressLen = 128

// Address is an opaque identifier of a connected chain account.
// Only equality and display truncation are meaningful.
type Address string

// ParseAddress trims s and rejects empty, oversized or whitespace-containing values.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAddressLen || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", apperr.WithDetails(apperr.ErrInvalidAddress, map[string]string{"address": s})
	}
	return Address(s), nil
}

// String returns the address as a string.
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether no address is set.
func (a Address) IsZero() bool {
	return a == ""
}

// Equal reports whether two addresses are the same account.
func (a Address) Equal(b Address) bool {
	return a == b
}

// Truncate shortens the address for display, keeping the first and last
// characters around "...". Addresses too short to shorten are returned whole.
func (a Address) Truncate(first, last int) string {
	s := string(a)
	if first < 0 {
		first = 0
	}
	if last < 0 {
		last = 0
	}
	if len(s) <= first+last+3 {
		return s
	}
	return s[:first] + "..." + s[len(s)-last:]
}

// Short is the display form used in messages: first 4 and last 4 characters.
func (a Address) Short() string {
	return a.Truncate(4, 4)
}
