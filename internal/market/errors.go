package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failure for propagation policy decisions: which
// kinds retry, which degrade, which surface immediately.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindSymbolResolution  ErrorKind = "symbol_resolution"
	KindProviderRateLimit ErrorKind = "provider_rate_limit"
	KindInsufficientBars  ErrorKind = "insufficient_bars"
	KindProviderTransport ErrorKind = "provider_transport"
	KindAnalysisError     ErrorKind = "analysis_error"
	KindConfiguration     ErrorKind = "configuration_error"
	KindCacheError        ErrorKind = "cache_error"
	KindCancelled         ErrorKind = "cancelled"
)

// Machine-readable codes surfaced to callers.
const (
	CodeInvalidArgs        = "INVALID_ARGS"
	CodeInvalidContentType = "INVALID_CONTENT_TYPE"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeRequestTooLarge    = "REQUEST_TOO_LARGE"
	CodeInvalidJSON        = "INVALID_JSON"
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeProviderRateLimit  = "PROVIDER_RATE_LIMIT"
	CodeProviderError      = "PROVIDER_ERROR"
	CodeMissingData        = "MISSING_DATA"
	CodeInsufficientBars   = "INSUFFICIENT_BARS"
	CodeSymbolResolution   = "SYMBOL_RESOLUTION"
	CodeAnalysisError      = "ANALYSIS_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeConfigurationError = "CONFIGURATION_ERROR"
	CodeCacheError         = "CACHE_ERROR"
	CodeCancelled          = "CANCELLED"
)

// Error is the service-wide error value: a kind for propagation policy, a
// machine-readable code and optional context data, all JSON-serializable.
type Error struct {
	Kind      ErrorKind      `json:"kind"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	cause     error
}

// NewError builds an error of the given kind. Timestamp is set to now (UTC).
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same kind, so sentinel values like
// ErrProviderRateLimit work with errors.Is across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || t.Code == e.Code)
}

// WithData attaches a context key/value and returns the error for chaining.
func (e *Error) WithData(key string, value any) *Error {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// MarshalJSON renders the timestamp as ISO-8601 UTC and flattens the cause
// into a plain string.
func (e *Error) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind      ErrorKind      `json:"kind"`
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Data      map[string]any `json:"data,omitempty"`
		Timestamp string         `json:"timestamp"`
		Cause     string         `json:"cause,omitempty"`
	}
	w := wire{
		Kind:      e.Kind,
		Code:      e.Code,
		Message:   e.Message,
		Data:      e.Data,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	}
	if e.cause != nil {
		w.Cause = e.cause.Error()
	}
	return json.Marshal(w)
}

// Kind sentinels for errors.Is matching.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrSymbolResolution  = &Error{Kind: KindSymbolResolution}
	ErrProviderRateLimit = &Error{Kind: KindProviderRateLimit}
	ErrInsufficientBars  = &Error{Kind: KindInsufficientBars}
	ErrProviderTransport = &Error{Kind: KindProviderTransport}
	ErrAnalysis          = &Error{Kind: KindAnalysisError}
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrCache             = &Error{Kind: KindCacheError}
	ErrCancelled         = &Error{Kind: KindCancelled}
)

// NewValidationError builds a Validation error with the given caller-facing
// code (INVALID_ARGS, INVALID_FORMAT, INVALID_JSON, ...).
func NewValidationError(code, message string) *Error {
	return NewError(KindValidation, code, message)
}

// NewSymbolResolutionError reports an unresolvable symbol, optionally with a
// suggested alternative.
func NewSymbolResolutionError(symbol, suggestion string) *Error {
	e := NewError(KindSymbolResolution, CodeSymbolResolution,
		fmt.Sprintf("cannot resolve symbol %q", symbol)).
		WithData("symbol", symbol)
	if suggestion != "" {
		e = e.WithData("suggestion", suggestion)
	}
	return e
}

// NewRateLimitError reports an upstream rate limit. retryAfter may be zero
// when the provider gave no hint.
func NewRateLimitError(provider string, retryAfter time.Duration) *Error {
	e := NewError(KindProviderRateLimit, CodeProviderRateLimit,
		fmt.Sprintf("provider %s rate limited", provider)).
		WithData("provider", provider)
	if retryAfter > 0 {
		e = e.WithData("retryAfterSeconds", retryAfter.Seconds())
	}
	return e
}

// NewInsufficientBarsError reports a response shorter than the analysis
// window requires.
func NewInsufficientBarsError(required, received int) *Error {
	return NewError(KindInsufficientBars, CodeInsufficientBars,
		fmt.Sprintf("need %d bars, received %d", required, received)).
		WithData("required", required).
		WithData("received", received)
}

// NewTransportError reports a network or upstream failure eligible for retry.
func NewTransportError(provider string, cause error) *Error {
	return NewError(KindProviderTransport, CodeProviderError,
		fmt.Sprintf("provider %s request failed", provider)).
		WithData("provider", provider).
		WithCause(cause)
}

// NewAnalysisError reports a sub-engine failure; the orchestrator degrades
// the affected section instead of failing the report.
func NewAnalysisError(engine string, cause error) *Error {
	return NewError(KindAnalysisError, CodeAnalysisError,
		fmt.Sprintf("%s analysis failed", engine)).
		WithData("engine", engine).
		WithCause(cause)
}

// NewConfigurationError reports an invalid or missing configuration value.
func NewConfigurationError(message string) *Error {
	return NewError(KindConfiguration, CodeConfigurationError, message)
}

// NewCacheError reports a cache backend failure. Callers treat reads as
// misses and log writes; this kind never blocks the request path.
func NewCacheError(op string, cause error) *Error {
	return NewError(KindCacheError, CodeCacheError,
		fmt.Sprintf("cache %s failed", op)).
		WithData("op", op).
		WithCause(cause)
}

// NewCancelledError wraps a context cancellation or deadline.
func NewCancelledError(cause error) *Error {
	return NewError(KindCancelled, CodeCancelled, "operation cancelled").WithCause(cause)
}

// KindOf extracts the taxonomy kind from any error in the chain. Errors
// outside the taxonomy report the empty kind, plain context errors included;
// callers that care about those check errors.Is directly.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RetryAfter extracts the provider-supplied retry hint from a rate-limit
// error, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindProviderRateLimit {
		return 0, false
	}
	secs, ok := e.Data["retryAfterSeconds"].(float64)
	if !ok || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
