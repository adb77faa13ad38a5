package mexc

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSymbol is returned for symbols missing from the contract registry.
	ErrUnknownSymbol = errors.New("mexc: unknown symbol")
	// ErrUnknownOrder is returned when an order id is not tracked.
	ErrUnknownOrder = errors.New("mexc: unknown order")
	// ErrNotConnected is returned when a stream has no live connection.
	ErrNotConnected = errors.New("mexc: not connected")
)

// TransportError is a non-2xx HTTP response or a failed round trip.
type TransportError struct {
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mexc %s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("mexc %s %s status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is an envelope with success=false.
type APIError struct {
	Path    string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mexc %s: code %d: %s", e.Path, e.Code, e.Message)
}

// AuthError covers missing credentials and rejected logins.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "mexc auth: " + e.Reason
}

// ReconcileWarning flags a push or snapshot entry that could not be mapped.
// The offending message is dropped; processing continues.
type ReconcileWarning struct {
	Channel string
	Reason  string
}

func (e *ReconcileWarning) Error() string {
	return fmt.Sprintf("mexc reconcile %s: %s", e.Channel, e.Reason)
}
