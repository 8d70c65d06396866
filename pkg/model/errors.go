package model

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindConfigurationMissing ErrorKind = "configuration_missing"
	KindInvalidInput         ErrorKind = "invalid_input"
	KindModelUnavailable     ErrorKind = "model_unavailable"
	KindProviderError        ErrorKind = "provider_error"
	KindEmptyResponse        ErrorKind = "empty_response"
	KindTransportError       ErrorKind = "transport_error"
	KindDeliveryFailure      ErrorKind = "delivery_failure"
)

// Sentinels for errors.Is; only Kind is compared.
var (
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrModelUnavailable     = &Error{Kind: KindModelUnavailable}
	ErrProviderError        = &Error{Kind: KindProviderError}
	ErrEmptyResponse        = &Error{Kind: KindEmptyResponse}
	ErrTransportError       = &Error{Kind: KindTransportError}
	ErrDeliveryFailure      = &Error{Kind: KindDeliveryFailure}
)

// Error is the typed failure returned by every pipeline component.
type Error struct {
	Kind    ErrorKind
	Message string
	// StatusCode is the provider or destination status, zero when none was received.
	StatusCode int
	// AvailableModels is populated for KindModelUnavailable when the listing call succeeded.
	AvailableModels []string
	Err             error
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && !strings.Contains(e.Message, e.Err.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind. An empty response also matches ErrProviderError.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind == t.Kind {
		return true
	}
	return e.Kind == KindEmptyResponse && t.Kind == KindProviderError
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// AvailableModelsOf returns the substitute model list attached to a ModelUnavailable error.
func AvailableModelsOf(err error) []string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.AvailableModels
	}
	return nil
}
