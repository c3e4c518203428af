// Package errors provides structured error handling for estatelink.
// Every error the CLI can surface carries a machine-readable code, an exit
// code, and optional details and a suggestion for the user.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input
	ExitAuth     = 3 // Authentication failed or declined
	ExitNotFound = 4 // Resource not found
)

// LinkError is the structured error type for estatelink.
type LinkError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *LinkError) Error() string {
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

func (e *LinkError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a LinkError with the same code.
func (e *LinkError) Is(target error) bool {
	var t *LinkError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &LinkError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &LinkError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &LinkError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Session errors.
	ErrNoAddress = &LinkError{
		Code:     "NO_ADDRESS",
		Message:  "wallet provider returned no address",
		ExitCode: ExitNotFound,
	}

	ErrAuthDeclined = &LinkError{
		Code:     "AUTH_DECLINED",
		Message:  "authentication signature was declined or failed",
		ExitCode: ExitAuth,
	}

	ErrProviderFailure = &LinkError{
		Code:     "PROVIDER_FAILURE",
		Message:  "wallet provider request failed",
		ExitCode: ExitGeneral,
	}

	ErrNotConnected = &LinkError{
		Code:     "NOT_CONNECTED",
		Message:  "no wallet is connected",
		ExitCode: ExitAuth,
	}

	ErrUnsupportedMethod = &LinkError{
		Code:     "UNSUPPORTED_METHOD",
		Message:  "wallet provider does not support this request method",
		ExitCode: ExitInput,
	}

	ErrUnknownProvider = &LinkError{
		Code:     "UNKNOWN_PROVIDER",
		Message:  "unknown wallet provider",
		ExitCode: ExitInput,
	}

	ErrUnknownChain = &LinkError{
		Code:     "UNKNOWN_CHAIN",
		Message:  "unknown chain",
		ExitCode: ExitInput,
	}

	// Keystore errors.
	ErrKeystoreNotFound = &LinkError{
		Code:     "KEYSTORE_NOT_FOUND",
		Message:  "keystore not found",
		ExitCode: ExitNotFound,
	}

	ErrKeystoreExists = &LinkError{
		Code:     "KEYSTORE_EXISTS",
		Message:  "keystore already exists",
		ExitCode: ExitInput,
	}

	ErrInvalidMnemonic = &LinkError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	ErrDecryptionFailed = &LinkError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong password or corrupted file",
		ExitCode: ExitAuth,
	}

	// Config errors.
	ErrConfigInvalid = &LinkError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &LinkError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}
)

// New creates a new LinkError with the given code and message.
func New(code, message string) *LinkError {
	return &LinkError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context. A LinkError keeps its code,
// exit code and underlying cause.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var le *LinkError
	if errors.As(err, &le) {
		return &LinkError{
			Code:       le.Code,
			Message:    fmt.Sprintf("%s: %s", msg, le.Message),
			Details:    le.Details,
			Suggestion: le.Suggestion,
			Cause:      le.Cause,
			ExitCode:   le.ExitCode,
		}
	}

	return &LinkError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of a sentinel with an underlying cause attached.
// The result still matches the sentinel with errors.Is and also unwraps to cause.
func WithCause(sentinel *LinkError, cause error) error {
	return &LinkError{
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

	var le *LinkError
	if errors.As(err, &le) {
		return &LinkError{
			Code:       le.Code,
			Message:    le.Message,
			Details:    details,
			Suggestion: le.Suggestion,
			Cause:      le.Cause,
			ExitCode:   le.ExitCode,
		}
	}

	return &LinkError{
		Code:     "GENERAL_ERROR",
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

	var le *LinkError
	if errors.As(err, &le) {
		return &LinkError{
			Code:       le.Code,
			Message:    le.Message,
			Details:    le.Details,
			Suggestion: suggestion,
			Cause:      le.Cause,
			ExitCode:   le.ExitCode,
		}
	}

	return &LinkError{
		Code:       "GENERAL_ERROR",
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

	var le *LinkError
	if errors.As(err, &le) {
		return le.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var le *LinkError
	if errors.As(err, &le) {
		return le.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
