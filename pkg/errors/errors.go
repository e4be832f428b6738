// Package errors provides structured error handling for memeindex.
// Errors carry a machine-readable code, a user-facing message, optional
// details and a suggestion, plus the exit code the CLI should return.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input or launch parameters
	ExitNetwork  = 3 // Backend unreachable after retries
	ExitNotFound = 4 // Resource not found
	ExitState    = 5 // Operation not valid in the current state
)

// AppError is the structured error type for memeindex.
type AppError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *AppError) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// General errors.
var (
	ErrGeneral = &AppError{
		Code:     "GENERAL_ERROR",
		Message:  "something went wrong",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &AppError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &AppError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}
)

// Backend transport errors. These are the transient class and are retried.
var (
	ErrNetworkError = &AppError{
		Code:     "NETWORK_ERROR",
		Message:  "backend communication failed",
		ExitCode: ExitNetwork,
	}

	ErrTimeout = &AppError{
		Code:     "TIMEOUT",
		Message:  "backend request timed out",
		ExitCode: ExitNetwork,
	}

	ErrRateLimited = &AppError{
		Code:     "RATE_LIMITED",
		Message:  "backend rate limit exceeded",
		ExitCode: ExitNetwork,
	}

	ErrServerError = &AppError{
		Code:     "SERVER_ERROR",
		Message:  "backend returned an error",
		ExitCode: ExitNetwork,
	}
)

// Validation and protocol errors. These are terminal and never retried.
var (
	ErrInvalidParameters = &AppError{
		Code:     "INVALID_PARAMETERS",
		Message:  "backend rejected the request as malformed",
		ExitCode: ExitInput,
	}

	ErrRequestRejected = &AppError{
		Code:     "REQUEST_REJECTED",
		Message:  "backend refused the request",
		ExitCode: ExitGeneral,
	}

	ErrInvalidLaunchParams = &AppError{
		Code:     "INVALID_LAUNCH_PARAMS",
		Message:  "invalid launch parameters",
		ExitCode: ExitInput,
	}

	ErrMissingIdentity = &AppError{
		Code:       "MISSING_IDENTITY",
		Message:    "launch identity is missing",
		Suggestion: "Please open this app in Telegram",
		ExitCode:   ExitInput,
	}

	ErrMissingUsername = &AppError{
		Code:     "MISSING_USERNAME",
		Message:  "display name is missing from the launch identity",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &AppError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid wallet address",
		ExitCode: ExitInput,
	}

	ErrUnknownTaskType = &AppError{
		Code:     "UNKNOWN_TASK_TYPE",
		Message:  "unknown task type",
		ExitCode: ExitInput,
	}
)

// Wallet and connection state errors.
var (
	ErrWalletUnavailable = &AppError{
		Code:     "WALLET_UNAVAILABLE",
		Message:  "wallet connector is not initialized",
		ExitCode: ExitState,
	}

	ErrNotConnected = &AppError{
		Code:       "NOT_CONNECTED",
		Message:    "no wallet connected",
		Suggestion: "Connect a wallet with 'memeindex connect'",
		ExitCode:   ExitState,
	}

	ErrRegistrationFailed = &AppError{
		Code:     "REGISTRATION_FAILED",
		Message:  "registration failed",
		ExitCode: ExitNetwork,
	}

	ErrInvalidTransition = &AppError{
		Code:     "INVALID_TRANSITION",
		Message:  "event not valid in the current connection state",
		ExitCode: ExitState,
	}
)

// Config errors.
var (
	ErrConfigNotFound = &AppError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &AppError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &AppError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}
)

// New creates a new AppError with the given code and message.
func New(code, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context, keeping its code.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{
			Code:       ae.Code,
			Message:    fmt.Sprintf("%s: %s", msg, ae.Message),
			Details:    ae.Details,
			Suggestion: ae.Suggestion,
			Cause:      err,
			ExitCode:   ae.ExitCode,
		}
	}

	return &AppError{
		Code:     ErrGeneral.Code,
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of a sentinel with cause attached, so that
// errors.Is matches both the sentinel and the cause.
func WithCause(sentinel *AppError, cause error) error {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{
			Code:       ae.Code,
			Message:    ae.Message,
			Details:    details,
			Suggestion: ae.Suggestion,
			Cause:      ae.Cause,
			ExitCode:   ae.ExitCode,
		}
	}

	return &AppError{
		Code:     ErrGeneral.Code,
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{
			Code:       ae.Code,
			Message:    ae.Message,
			Details:    ae.Details,
			Suggestion: suggestion,
			Cause:      ae.Cause,
			ExitCode:   ae.ExitCode,
		}
	}

	return &AppError{
		Code:       ErrGeneral.Code,
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ae *AppError
	if errors.As(err, &ae) {
		return ae.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrGeneral.Code
}

// UserMessage returns the message that should be shown to the user.
// Unknown errors collapse to the generic message.
func UserMessage(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return ErrGeneral.Message
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
