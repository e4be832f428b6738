package wallet

import (
	"context"
	"time"
)

// Account is the account currently connected through the SDK.
type Account struct {
	Address     Address   `json:"address"`
	Chain       string    `json:"chain"`
	WalletApp   string    `json:"wallet_app,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Status is a status-change event emitted by the SDK. Account is nil when
// Connected is false.
type Status struct {
	Connected bool
	Account   *Account
}

// Connected returns a connected status for acct.
func Connected(acct Account) Status {
	return Status{Connected: true, Account: &acct}
}

// Disconnected returns a disconnected status.
func Disconnected() Status {
	return Status{}
}

// Listener receives status-change events. It may be called from any goroutine.
type Listener func(Status)

// Connector is the surface of the wallet-connect SDK that memeindex uses.
// The connector owns the live wallet session and is the source of truth for
// which account is connected.
type Connector interface {
	// OpenModal presents the SDK's connection UI.
	OpenModal(ctx context.Context) error

	// OnStatusChange registers l and returns a func that unregisters it.
	OnStatusChange(l Listener) (unsubscribe func())

	// Connected reports whether a wallet session is live.
	Connected() bool

	// Account returns the connected account, if any.
	Account() (Account, bool)

	// Disconnect ends the wallet session.
	Disconnect(ctx context.Context) error
}
