package domain

import "errors"

// Code is one of the stable, enumerated error codes the façade surfaces
// to callers (spec §6 "Memory operation payloads").
type Code string

const (
	CodeInvalidLayer          Code = "INVALID_LAYER"
	CodeMissingIdentifier     Code = "MISSING_IDENTIFIER"
	CodeMissingTenantContext  Code = "MISSING_TENANT_CONTEXT"
	CodeInvalidTenantContext  Code = "INVALID_TENANT_CONTEXT"
	CodeMemoryNotFound        Code = "MEMORY_NOT_FOUND"
	CodeContentTooLong        Code = "CONTENT_TOO_LONG"
	CodeQueryTooLong          Code = "QUERY_TOO_LONG"
	CodeEmbeddingFailed       Code = "EMBEDDING_FAILED"
	CodeProviderError         Code = "PROVIDER_ERROR"
	CodeRateLimited           Code = "RATE_LIMITED"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeConfigurationError    Code = "CONFIGURATION_ERROR"
	CodePolicyViolation       Code = "POLICY_VIOLATION"
	CodeBackendCircuitOpen    Code = "BACKEND_CIRCUIT_OPEN"
)

// Retryable reports whether callers should retry an error carrying this
// code, per the §7 taxonomy (transient-backend codes are retryable,
// validation/authorization/fatal codes are not).
func (c Code) Retryable() bool {
	switch c {
	case CodeEmbeddingFailed, CodeProviderError, CodeRateLimited, CodeBackendCircuitOpen:
		return true
	default:
		return false
	}
}

// Error is the typed error every façade and engine operation returns on
// failure. Exactly one Code is primary. Degraded-mode detail that did
// not abort an operation is not carried here; it is returned as
// domain.Warning values beside a successful result.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Code) + ": " + e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError constructs an *Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails attaches remediation-hint details and returns the receiver
// for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCause attaches an underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error, and
// the empty Code otherwise.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Warning is a non-fatal condition attached to an otherwise successful
// response — e.g. a stale summary or a partial-layer search failure.
type Warning struct {
	Code    string
	Message string
}
