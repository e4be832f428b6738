// Package host models the chat application hosting the mini-app: who
// launched it, with which start parameter, and the primitives it offers for
// alerts, links and sharing messages.
package host

import (
	"strconv"
	"strings"

	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// Identity is the launch identity supplied by the host. It is immutable for
// the session.
type Identity struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// IsZero reports whether no launch identity is present.
func (i Identity) IsZero() bool {
	return i.ID == 0
}

// Key returns the identity id in the form used for backend lookups.
func (i Identity) Key() string {
	return strconv.FormatInt(i.ID, 10)
}

// DisplayName is the username when set, otherwise the first and last name.
func (i Identity) DisplayName() string {
	if u := strings.TrimSpace(i.Username); u != "" {
		return u
	}
	return strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
}

// Validate checks the fields every flow depends on. A missing id or display
// name is a terminal error.
func (i Identity) Validate() error {
	if i.ID <= 0 {
		return apperr.ErrMissingIdentity
	}
	if i.DisplayName() == "" {
		return apperr.WithDetails(apperr.ErrMissingUsername, map[string]string{"id": i.Key()})
	}
	return nil
}

// LaunchParams are the read-only values the host hands the app at start.
type LaunchParams struct {
	Identity   Identity
	StartParam string
}

// ReferralCode returns the inbound referral code carried by the start parameter.
func (p LaunchParams) ReferralCode() string {
	return strings.TrimSpace(p.StartParam)
}
