// Package errs is the typed error taxonomy used at every exchange
// boundary. It replaces the teacher's ad hoc `if err != nil { log... }`
// sprinkled through trader.go/step.go (e.g. step.go's single inline
// "retry once with ORDER_MIN_USD" on an insufficient-funds failure)
// with a uniform sum-of-kinds error plus composable recovery
// strategies, so every call site gets the same retry/backoff/degrade
// behavior instead of a bespoke one-off.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy's discriminant.
type Kind string

const (
	KindExchangeRateLimit  Kind = "EXCHANGE_RATE_LIMIT"
	KindNetwork            Kind = "NETWORK_ERROR"
	KindInvalidArgument    Kind = "INVALID_ARGUMENT"
	KindNotFound           Kind = "NOT_FOUND"
	KindAuthentication     Kind = "AUTHENTICATION_ERROR"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindStaleData          Kind = "STALE_DATA"
	KindUnknown            Kind = "UNKNOWN"
)

// Severity communicates operator-facing urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Error is the uniform error type used at exchange boundaries. It
// carries enough metadata for a recovery strategy to decide whether
// and how to retry without inspecting string messages.
type Error struct {
	Kind         Kind
	Code         string
	Message      string
	Severity     Severity
	Retryable    bool
	RetryAfterMs int64 // only meaningful for KindExchangeRateLimit
	Cause        error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a taxonomy error with sane retryability defaults per kind.
func New(kind Kind, code, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Severity:  defaultSeverity(kind),
		Retryable: defaultRetryable(kind),
		Cause:     cause,
	}
}

// RateLimit builds an KindExchangeRateLimit error honoring retry-after.
func RateLimit(code, message string, retryAfterMs int64, cause error) *Error {
	e := New(KindExchangeRateLimit, code, message, cause)
	e.RetryAfterMs = retryAfterMs
	return e
}

func defaultSeverity(k Kind) Severity {
	switch k {
	case KindAuthentication, KindInsufficientFunds:
		return SeverityCritical
	case KindNetwork, KindExchangeRateLimit, KindStaleData:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func defaultRetryable(k Kind) bool {
	switch k {
	case KindExchangeRateLimit, KindNetwork, KindStaleData:
		return true
	default:
		return false
	}
}

// As extracts a *Error from err, following the standard errors.As chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err is (or wraps) a retryable taxonomy error.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}
