// Package errors provides centralized error definitions and error handling
// utilities for atkrun. It defines sentinel errors, typed errors carrying
// bridge context, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures talking to the bridge:
//   - TransportError: network or HTTP failure (refused, timeout, non-2xx)
//   - SessionError: failure opening or closing the bridge session
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input (bad batch file, bad config)
//   - TimeoutError: an operation exceeded its deadline
//
// Command-level outcomes (an engine NACK, a non-zero onReceivedEx code, a
// malformed log line) are not errors. They are recorded in the command's
// result.
//
// # Usage
//
//	err := errors.NewTransportError("POST failed", cause).WithURL(url)
//
//	var transportErr *errors.TransportError
//	if errors.As(err, &transportErr) { ... }
//
//	if errors.Is(err, errors.ErrTimeout) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Bridge-related sentinel errors
var (
	// ErrTransport indicates the bridge could not be reached or answered badly.
	ErrTransport = New("transport failure")
	// ErrHTTPStatus indicates the bridge answered with a non-2xx status.
	ErrHTTPStatus = New("unexpected http status")
	// ErrOpenFailed indicates the bridge could not open the engine connection.
	ErrOpenFailed = New("session open failed")
	// ErrCloseFailed indicates the bridge failed to close the engine connection.
	ErrCloseFailed = New("session close failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrMalformedBatch indicates a batch file could not be decoded.
	ErrMalformedBatch = New("malformed batch file")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// RunnerError is the base interface for all atkrun errors.
type RunnerError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient. atkrun never
	// retries bridge calls itself; the flag is informational for callers.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// TransportError represents a failed HTTP exchange with the bridge.
//
// Example:
//
//	err := errors.NewTransportError("bridge returned error status", errors.ErrHTTPStatus).
//		WithURL("http://localhost:8080/atk/connect").
//		WithStatusCode(500)
//	fmt.Println(err) // "transport error [url=http://..., status=500]: bridge returned error status: unexpected http status"
type TransportError struct {
	baseError
	URL        string
	StatusCode int
	Timeout    bool
}

// NewTransportError creates a new TransportError.
func NewTransportError(message string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithURL adds the request URL to the error context.
func (e *TransportError) WithURL(url string) *TransportError {
	e.URL = url
	return e
}

// WithStatusCode adds the HTTP status code to the error context.
func (e *TransportError) WithStatusCode(code int) *TransportError {
	e.StatusCode = code
	return e
}

// WithTimeout marks the error as caused by an elapsed deadline.
func (e *TransportError) WithTimeout(timedOut bool) *TransportError {
	e.Timeout = timedOut
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	var parts []string
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("url=%s", e.URL))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Timeout {
		parts = append(parts, "timeout")
	}

	prefix := "transport error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("transport error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TransportError) Is(target error) bool {
	if _, ok := target.(*TransportError); ok {
		return true
	}
	if target == ErrTransport {
		return true
	}
	if target == ErrTimeout && e.Timeout {
		return true
	}
	return e.baseError.Is(target)
}

// SessionPhase names the lifecycle step a SessionError happened in.
type SessionPhase string

// Session lifecycle phases.
const (
	PhaseOpen  SessionPhase = "open"
	PhaseClose SessionPhase = "close"
)

// SessionError represents a failure in the bridge session lifecycle.
//
// Example:
//
//	err := errors.NewSessionError("bridge could not reach engine", transportErr).
//		WithTarget("127.0.0.1", 6655).WithPhase(errors.PhaseOpen)
type SessionError struct {
	baseError
	Host  string
	Port  int
	Phase SessionPhase
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTarget adds the engine host and port to the error context.
func (e *SessionError) WithTarget(host string, port int) *SessionError {
	e.Host = host
	e.Port = port
	return e
}

// WithPhase records the lifecycle phase.
func (e *SessionError) WithPhase(phase SessionPhase) *SessionError {
	e.Phase = phase
	if phase == PhaseClose {
		e.severity = SeverityWarning
	}
	return e
}

// WithSeverity sets the error severity.
func (e *SessionError) WithSeverity(s Severity) *SessionError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.Host != "" {
		parts = append(parts, fmt.Sprintf("target=%s:%d", e.Host, e.Port))
	}

	prefix := "session error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("session error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	switch {
	case target == ErrOpenFailed && e.Phase == PhaseOpen:
		return true
	case target == ErrCloseFailed && e.Phase == PhaseClose:
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("command verb is required")
//	err = err.WithField("commands[2].command").WithValue("")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("POST /atk/connect", 10*time.Second)
//	fmt.Println(err) // "timeout error: POST /atk/connect (timeout: 10s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var runnerErr RunnerError
	if As(err, &runnerErr) {
		return runnerErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var runnerErr RunnerError
	if As(err, &runnerErr) {
		return runnerErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement RunnerError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var runnerErr RunnerError
	if As(err, &runnerErr) {
		return runnerErr.Severity()
	}

	return SeverityError
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return err != nil && As(err, &transportErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
