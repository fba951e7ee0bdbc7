// Package errors provides centralized error definitions and error handling utilities
// for shepherd. It defines sentinel errors, typed errors carrying migration context,
// and classification helpers used to decide whether an operation may be retried.
//
// # Error Kinds
//
// Typed errors:
//   - TransportError: signal collection against the hosting platform failed
//   - UnparseableStepError: a pull request's step reference could not be decoded
//   - ConfigError: configuration or rule definitions are malformed (fatal at startup)
//
// Semantic errors:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input
//
// A TransportError also matches ErrTimeout, ErrCanceled and ErrRateLimited
// when the deadline expired, the caller gave up, or the platform throttled
// the request.
//
// Step sequencing rejections and policy violations are NOT errors. They are
// structured results (sequencer.Decision and policy.EvaluationResult) that the
// caller must branch on.
//
// # Usage
//
//	err := errors.NewTransportError("list pull requests", cause).WithMigration("add-tests")
//	if errors.IsRetryable(err) { ... }
//
//	var transportErr *errors.TransportError
//	if errors.As(err, &transportErr) && transportErr.Timeout { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
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

// Migration-related sentinel errors
var (
	// ErrInvalidMigrationID indicates a malformed migration identifier.
	ErrInvalidMigrationID = New("invalid migration identifier")
	// ErrUnparseableStep indicates a pull request with no decodable step reference.
	ErrUnparseableStep = New("unparseable step reference")
)

// Platform-related sentinel errors
var (
	// ErrTransport indicates the hosting platform could not be reached or answered with a failure.
	ErrTransport = New("transport failure")
	// ErrRateLimited indicates the hosting platform throttled the request.
	ErrRateLimited = New("rate limited")
	// ErrNotFound indicates the hosting platform answered "not found".
	ErrNotFound = New("not found")
)

// Configuration sentinel errors
var (
	// ErrInvalidRule indicates a policy rule definition is malformed.
	ErrInvalidRule = New("invalid policy rule")
	// ErrInvalidConfig indicates configuration values failed validation.
	ErrInvalidConfig = New("invalid configuration")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ShepherdError is the base interface for all shepherd errors.
type ShepherdError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
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

// contextPrefix renders "<kind> [k=v, ...]" for the typed errors below.
func contextPrefix(kind string, parts []string) string {
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Typed Errors
// -----------------------------------------------------------------------------

// TransportError reports a failed call to the hosting platform during signal
// collection. It is retryable unless the platform answered "not found" or
// the caller canceled the request.
//
// Example:
//
//	err := errors.NewTransportError("list closed pull requests", cause).
//		WithMigration("add-tests").WithStatusCode(502)
type TransportError struct {
	baseError
	Operation   string
	MigrationID string
	StatusCode  int
	Attempts    int
	// Timeout is set when the caller's deadline expired before collection finished.
	Timeout bool
	// Canceled is set when the caller canceled the context.
	Canceled bool
	// RateLimited is set when the platform throttled the request.
	RateLimited bool
}

// NewTransportError creates a retryable TransportError.
func NewTransportError(operation string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:    operation,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
	}
}

// WithMigration adds the migration identifier to the error context.
func (e *TransportError) WithMigration(id string) *TransportError {
	e.MigrationID = id
	return e
}

// WithStatusCode records the HTTP status returned by the platform.
// A 404 makes the error non-retryable.
func (e *TransportError) WithStatusCode(code int) *TransportError {
	e.StatusCode = code
	if code == 404 {
		e.retryable = false
	}
	return e
}

// WithAttempts records how many attempts were made before giving up.
func (e *TransportError) WithAttempts(n int) *TransportError {
	e.Attempts = n
	return e
}

// WithTimeout marks the error as caused by an expired deadline.
func (e *TransportError) WithTimeout() *TransportError {
	e.Timeout = true
	e.retryable = true
	return e
}

// WithCanceled marks the error as caused by the caller canceling the
// context. Retrying a canceled request is pointless.
func (e *TransportError) WithCanceled() *TransportError {
	e.Canceled = true
	e.retryable = false
	return e
}

// WithRateLimited marks the error as platform throttling. It stays retryable.
func (e *TransportError) WithRateLimited() *TransportError {
	e.RateLimited = true
	e.retryable = true
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *TransportError) WithRetryable(r bool) *TransportError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	var parts []string
	if e.MigrationID != "" {
		parts = append(parts, fmt.Sprintf("migration=%s", e.MigrationID))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("attempts=%d", e.Attempts))
	}
	if e.Timeout {
		parts = append(parts, "timeout")
	}
	if e.Canceled {
		parts = append(parts, "canceled")
	}
	if e.RateLimited {
		parts = append(parts, "rate limited")
	}

	prefix := contextPrefix("transport error", parts)
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
	if e.Timeout && target == ErrTimeout {
		return true
	}
	if e.Canceled && target == ErrCanceled {
		return true
	}
	if e.RateLimited && target == ErrRateLimited {
		return true
	}
	if e.StatusCode == 404 && target == ErrNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// UnparseableStepError describes a pull request whose labels, branch and title
// carry no decodable step reference. Inference logs it and moves on.
type UnparseableStepError struct {
	baseError
	Number int
	Branch string
}

// NewUnparseableStepError creates an UnparseableStepError for a pull request.
func NewUnparseableStepError(number int, branch string) *UnparseableStepError {
	return &UnparseableStepError{
		baseError: baseError{
			message:    "no step reference in labels, branch or title",
			cause:      ErrUnparseableStep,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Number: number,
		Branch: branch,
	}
}

// Error returns the formatted error message.
func (e *UnparseableStepError) Error() string {
	var parts []string
	if e.Number > 0 {
		parts = append(parts, fmt.Sprintf("pr=#%d", e.Number))
	}
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	return fmt.Sprintf("%s: %s", contextPrefix("unparseable step", parts), e.message)
}

// Is checks if this error matches the target.
func (e *UnparseableStepError) Is(target error) bool {
	if _, ok := target.(*UnparseableStepError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConfigError reports malformed configuration or rule definitions.
// It is never retryable; initialization must fail.
//
// Example:
//
//	err := errors.NewConfigError("unknown operator", errors.ErrInvalidRule).
//		WithSource("rules.yaml").WithRuleID("block-vendor")
type ConfigError struct {
	baseError
	Source string
	RuleID string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithSource records the file or config key the error came from.
func (e *ConfigError) WithSource(source string) *ConfigError {
	e.Source = source
	return e
}

// WithRuleID records the offending rule.
func (e *ConfigError) WithRuleID(id string) *ConfigError {
	e.RuleID = id
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", e.Source))
	}
	if e.RuleID != "" {
		parts = append(parts, fmt.Sprintf("rule=%s", e.RuleID))
	}

	prefix := contextPrefix("config error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	if target == ErrInvalidConfig {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("migration", "add-tests")
//	fmt.Println(err) // "migration 'add-tests' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input.
//
// Example:
//
//	err := errors.NewValidationError("step must be positive").WithField("step").WithValue(0)
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

	prefix := contextPrefix("validation error", parts)
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

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var shepherdErr ShepherdError
	if As(err, &shepherdErr) {
		return shepherdErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var shepherdErr ShepherdError
	if As(err, &shepherdErr) {
		return shepherdErr.IsUserFacing()
	}
	return false
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var transportErr *TransportError
	if As(err, &transportErr) {
		return transportErr.Timeout
	}
	return Is(err, ErrTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ShepherdError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var shepherdErr ShepherdError
	if As(err, &shepherdErr) {
		return shepherdErr.Severity()
	}

	return SeverityError
}

// Wrap wraps an error with additional context message.
// Unlike a bare fmt.Errorf, it returns nil for a nil error.
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
