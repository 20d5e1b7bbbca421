package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_gateway_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)

// TransportError wraps network failures and gateway 5xx responses. Retryable.
type TransportError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport: %v", e.Provider, e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError wraps gateway 4xx business rejections. Not retryable without
// changing the request; the provider message is surfaced for diagnosis.
type RejectedError struct {
	Provider  string
	Operation string
	Status    int
	Message   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s %s: rejected (%d): %s", e.Provider, e.Operation, e.Status, e.Message)
}

// IsTransport reports whether err is a retryable gateway transport failure.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsRejected reports whether the gateway rejected the request body.
func IsRejected(err error) bool {
	var rejectedErr *RejectedError
	return errors.As(err, &rejectedErr)
}
