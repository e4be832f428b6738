package reconcile

import (
	"github.com/memeindex/memeindex/internal/wallet"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// Phase is the connection phase.
type Phase int

// Connection phases.
const (
	Disconnected Phase = iota
	Connecting
	Connected
	Registering
	Registered
	Failed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the connection state. Address is set in Connected,
// Registering and Registered; Reason is set in Failed.
type State struct {
	Phase   Phase
	Address wallet.Address
	Reason  error
}

// HasAddress reports whether the state carries a connected address.
func (s State) HasAddress() bool {
	switch s.Phase {
	case Connected, Registering, Registered:
		return !s.Address.IsZero()
	default:
		return false
	}
}

type event int

const (
	evConnectRequested event = iota
	evAccountConnected
	evLookupRegistered
	evLookupUnregistered
	evRegisterSucceeded
	evFailed
	evDisconnected
)

func (e event) String() string {
	switch e {
	case evConnectRequested:
		return "connect_requested"
	case evAccountConnected:
		return "account_connected"
	case evLookupRegistered:
		return "lookup_registered"
	case evLookupUnregistered:
		return "lookup_unregistered"
	case evRegisterSucceeded:
		return "register_succeeded"
	case evFailed:
		return "failed"
	case evDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// transitions lists the valid events per phase and the phase they lead to.
//
//nolint:gochecknoglobals // Read-only transition table
var transitions = map[Phase]map[event]Phase{
	Disconnected: {
		evConnectRequested: Connecting,
		evAccountConnected: Connected,
		evDisconnected:     Disconnected,
	},
	Connecting: {
		evConnectRequested: Connecting,
		evAccountConnected: Connected,
		evDisconnected:     Disconnected,
	},
	Connected: {
		evAccountConnected:   Connected,
		evLookupRegistered:   Registered,
		evLookupUnregistered: Registering,
		evFailed:             Failed,
		evDisconnected:       Disconnected,
	},
	Registering: {
		evAccountConnected:  Connected,
		evRegisterSucceeded: Registered,
		evFailed:            Failed,
		evDisconnected:      Disconnected,
	},
	Registered: {
		evAccountConnected: Connected,
		evDisconnected:     Disconnected,
	},
	Failed: {
		evConnectRequested: Connecting,
		evAccountConnected: Connected,
		evDisconnected:     Disconnected,
	},
}

// next returns the phase e leads to from p.
func next(p Phase, e event) (Phase, error) {
	to, ok := transitions[p][e]
	if !ok {
		return p, apperr.WithDetails(apperr.ErrInvalidTransition, map[string]string{
			"phase": p.String(),
			"event": e.String(),
		})
	}
	return to, nil
}
