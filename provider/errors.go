package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes provider failures for retry decisions.
type ErrorType int8

const (
	// ErrorTypeRateLimit covers 429s and quota exhaustion. Retryable.
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient covers 5xx, timeouts, connection resets. Retryable.
	ErrorTypeTransient
	// ErrorTypeEmptyResponse covers a 200 with no content. Retryable.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth covers 401/403 and bad API keys. Not retryable.
	ErrorTypeAuth
	// ErrorTypeBadPrompt covers malformed or rejected requests. Not retryable.
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is the default for unclassified failures. Not
	// retried: repeating an unexplained failure rarely helps and burns the
	// caller's latency budget.
	ErrorTypeUnknown
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Retryable reports whether failures of this type are worth retrying on the
// same provider.
func (et ErrorType) Retryable() bool {
	switch et {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// Error is a classified provider failure.
type Error struct {
	Type     ErrorType
	Provider string
	Model    string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("provider %s [%s]: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("provider error [%s]: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a classified provider error.
func NewError(errType ErrorType, provider, model, message string) *Error {
	return &Error{Type: errType, Provider: provider, Model: model, Message: message}
}

// WrapError classifies err by inspecting its message and wraps it. Already
// classified errors pass through unchanged except for filling in provider
// and model when empty.
func WrapError(err error, provider, model string) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		if pe.Model == "" {
			pe.Model = model
		}
		return pe
	}
	return &Error{
		Type:     Classify(err),
		Provider: provider,
		Model:    model,
		Message:  err.Error(),
		Cause:    err,
	}
}

// TypeOf returns the classified type of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ErrorTypeUnknown
}

// Classify inspects an unclassified error's message for well-known failure
// signatures. Vendor SDKs rarely expose a stable error taxonomy, so string
// matching on the message is the pragmatic common denominator.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "overloaded"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "api key"),
		strings.Contains(msg, "authentication"):
		return ErrorTypeAuth
	case strings.Contains(msg, "400"),
		strings.Contains(msg, "invalid request"),
		strings.Contains(msg, "invalid_request"),
		strings.Contains(msg, "context length"),
		strings.Contains(msg, "too long"),
		strings.Contains(msg, "content policy"):
		return ErrorTypeBadPrompt
	case strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "service unavailable"):
		return ErrorTypeTransient
	case strings.Contains(msg, "empty response"),
		strings.Contains(msg, "no content"):
		return ErrorTypeEmptyResponse
	default:
		return ErrorTypeUnknown
	}
}
