// Package errors provides structured error types for the ThingWorx debug adapter.
// Every failure that can end a frontend request is classified with an ErrorCode so
// the session can decide what the frontend sees while the full cause is logged.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Target communication errors
	CodeTransport       ErrorCode = "TRANSPORT_ERROR"
	CodeSocketDial      ErrorCode = "SOCKET_DIAL_FAILED"
	CodeProtocol        ErrorCode = "PROTOCOL_ERROR"
	CodeRemote          ErrorCode = "REMOTE_ERROR"
	CodeHandshakeFailed ErrorCode = "HANDSHAKE_FAILED"
	CodeTimeout         ErrorCode = "TIMEOUT"

	// Session errors
	CodeNotAttached  ErrorCode = "NOT_ATTACHED"
	CodeCorrelation  ErrorCode = "CORRELATION_ERROR"
	CodeUnsupported  ErrorCode = "UNSUPPORTED_OPERATION"
	CodeCancelled    ErrorCode = "CANCELLED"
	CodeAlreadyAlive ErrorCode = "SESSION_ALREADY_ATTACHED"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	CodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// DebugError is a structured error type that carries a category, a readable
// message and, optionally, a hint on how to recover.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the service name, the frame id)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Target communication ---

// Transport creates an error for socket or HTTP connect/I-O failures
func Transport(operation string, err error) *DebugError {
	return &DebugError{
		Code:    CodeTransport,
		Message: fmt.Sprintf("%s failed", operation),
		Hint:    "Check that the ThingWorx server is reachable and that the BMDebugServer extension is installed.",
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// SocketDial creates an error for a debugger socket that never opened
func SocketDial(err error) *DebugError {
	return &DebugError{
		Code:    CodeSocketDial,
		Message: "connect to debugger socket failed",
		Hint:    "Check that the ThingWorx server is reachable and that the BMDebugServer extension is installed.",
		Cause:   err,
	}
}

// Protocol creates an error for responses that do not have the expected shape
func Protocol(service, reason string) *DebugError {
	return &DebugError{
		Code:    CodeProtocol,
		Message: fmt.Sprintf("unexpected response from %s: %s", service, reason),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Remote creates an error for a failure reported by the target itself
func Remote(service string, status int, body string) *DebugError {
	return &DebugError{
		Code:    CodeRemote,
		Message: fmt.Sprintf("%s returned HTTP %d", service, status),
		Hint:    "The debug server rejected the call. Verify the app key has permission to run BMDebugServer services.",
		Details: map[string]interface{}{
			"service": service,
			"status":  status,
			"body":    body,
		},
	}
}

// HandshakeFailed creates an error for a rejected or unreadable authentication reply
func HandshakeFailed(reason string, err error) *DebugError {
	return &DebugError{
		Code:    CodeHandshakeFailed,
		Message: fmt.Sprintf("debugger handshake failed: %s", reason),
		Hint:    "Verify thingworxAppKey is a valid application key for the target server.",
		Cause:   err,
	}
}

// Timeout creates an error for operations that exceeded their deadline
func Timeout(operation string, err error) *DebugError {
	return &DebugError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("%s timed out", operation),
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// --- Session errors ---

// NotAttached creates an error for target-bound requests issued without a connection
func NotAttached(command string) *DebugError {
	return &DebugError{
		Code:    CodeNotAttached,
		Message: fmt.Sprintf("cannot run '%s': the session is not attached to a target", command),
		Hint:    "Send an attach request first.",
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// AlreadyAttached creates an error for a second attach on a live session
func AlreadyAttached(target string) *DebugError {
	return &DebugError{
		Code:    CodeAlreadyAlive,
		Message: fmt.Sprintf("session is already attached to %s", target),
		Hint:    "Disconnect before attaching to another target.",
	}
}

// Correlation creates an error for a frame id that no stack trace produced
func Correlation(frameID int) *DebugError {
	return &DebugError{
		Code:    CodeCorrelation,
		Message: fmt.Sprintf("unknown stack frame %d", frameID),
		Hint:    "Request a stack trace for the owning thread before asking for its scopes or evaluating in it.",
		Details: map[string]interface{}{
			"frameId": frameID,
		},
	}
}

// Unsupported creates an error for deliberately rejected requests
func Unsupported(command string) *DebugError {
	return &DebugError{
		Code:    CodeUnsupported,
		Message: fmt.Sprintf("unsupported operation: %s", command),
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// Cancelled creates an error for requests the frontend cancelled before dispatch
func Cancelled(requestSeq int) *DebugError {
	return &DebugError{
		Code:    CodeCancelled,
		Message: fmt.Sprintf("request %d was cancelled", requestSeq),
		Details: map[string]interface{}{
			"requestSeq": requestSeq,
		},
	}
}

// --- Parameter errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// --- Helpers ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, preserving any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    CodeUnknown,
		Message: err.Error(),
		Cause:   err,
	}
}

// CodeOf returns the code of the first DebugError in err's chain, or CodeUnknown
func CodeOf(err error) ErrorCode {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
