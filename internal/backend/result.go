package backend

import (
	"net/http"
	"strings"
)

// RegisterOutcome is the interpreted result of a registration call.
type RegisterOutcome int

// Registration outcomes.
const (
	Registered RegisterOutcome = iota
	AlreadyRegistered
	InvalidParameters
	NetworkError
	ServerError
)

// String returns the outcome name.
func (o RegisterOutcome) String() string {
	switch o {
	case Registered:
		return "registered"
	case AlreadyRegistered:
		return "already_registered"
	case InvalidParameters:
		return "invalid_parameters"
	case NetworkError:
		return "network_error"
	case ServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// RegisterResult carries the outcome with the status and message it was
// derived from.
type RegisterResult struct {
	Outcome    RegisterOutcome
	StatusCode int
	Message    string
	User       *User
	Err        error
}

// Success reports whether the user is now registered.
func (r RegisterResult) Success() bool {
	return r.Outcome == Registered || r.Outcome == AlreadyRegistered
}

// Retriable reports whether another attempt may succeed.
func (r RegisterResult) Retriable() bool {
	switch r.Outcome {
	case NetworkError:
		return true
	case ServerError:
		return r.StatusCode >= 500
	default:
		return false
	}
}

// ApplyOutcome is the interpreted result of applying a referral code.
type ApplyOutcome int

// Referral apply outcomes.
const (
	Applied ApplyOutcome = iota
	AlreadyApplied
	ApplyRejected
	ApplyFailed
)

// String returns the outcome name.
func (o ApplyOutcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyApplied:
		return "already_applied"
	case ApplyRejected:
		return "rejected"
	case ApplyFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ApplyResult carries the outcome of an apply call.
type ApplyResult struct {
	Outcome    ApplyOutcome
	StatusCode int
	Message    string
	Err        error
}

// Success reports whether the referral is in effect, either just applied or
// applied earlier.
func (r ApplyResult) Success() bool {
	return r.Outcome == Applied || r.Outcome == AlreadyApplied
}

const (
	alreadyRegisteredPhrase = "already registered"
	alreadyAppliedPhrase    = "already applied"
)

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// ClassifyRegister maps a raw register response, or the transport error that
// replaced it, to a RegisterResult.
func ClassifyRegister(status int, message string, transportErr error) RegisterResult {
	if transportErr != nil {
		return RegisterResult{Outcome: NetworkError, Message: transportErr.Error(), Err: transportErr}
	}

	res := RegisterResult{StatusCode: status, Message: message}
	switch {
	case (status == http.StatusConflict || isSuccess(status)) && containsFold(message, alreadyRegisteredPhrase):
		res.Outcome = AlreadyRegistered
	case isSuccess(status):
		res.Outcome = Registered
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		res.Outcome = InvalidParameters
		res.Err = statusError(&response{Status: status, Message: message})
	case status == http.StatusTooManyRequests:
		res.Outcome = NetworkError
		res.Err = statusError(&response{Status: status, Message: message})
	default:
		res.Outcome = ServerError
		res.Err = statusError(&response{Status: status, Message: message})
	}
	return res
}

// ClassifyApply maps a raw apply response, or the transport error that
// replaced it, to an ApplyResult.
func ClassifyApply(status int, message string, transportErr error) ApplyResult {
	if transportErr != nil {
		return ApplyResult{Outcome: ApplyFailed, Message: transportErr.Error(), Err: transportErr}
	}

	res := ApplyResult{StatusCode: status, Message: message}
	switch {
	case containsFold(message, alreadyAppliedPhrase) &&
		(isSuccess(status) || status == http.StatusBadRequest || status == http.StatusConflict):
		res.Outcome = AlreadyApplied
	case isSuccess(status):
		res.Outcome = Applied
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
		res.Outcome = ApplyRejected
		res.Err = statusError(&response{Status: status, Message: message})
	default:
		res.Outcome = ApplyFailed
		res.Err = statusError(&response{Status: status, Message: message})
	}
	return res
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
