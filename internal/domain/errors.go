package domain

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")

	// Appliance error taxonomy. Typed errors below match these with errors.Is.
	ErrTransport     = errors.New("transport error")
	ErrRemote        = errors.New("remote error")
	ErrParse         = errors.New("unrecognized alias response")
	ErrAliasNotFound = errors.New("alias not found")
	ErrReloadFailed  = errors.New("firewall reload failed")
)

// TransportError wraps a failure to complete an HTTP exchange with the appliance:
// connection refused, timeout, TLS handshake failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RemoteError is a completed exchange with a non-2xx status.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: appliance returned %d: %s", e.Op, e.Status, body)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// Temporary reports whether retrying the same request may succeed.
func (e *RemoteError) Temporary() bool {
	return e.Status >= 500 || e.Status == 429 || e.Status == 408
}

// ParseError means the alias listing did not match any known response shape.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing aliases: %s: %v", e.Reason, e.Err)
	}
	return "parsing aliases: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// AliasNotFoundError is returned when a successfully parsed listing lacks the configured alias.
type AliasNotFoundError struct {
	Alias string
}

func (e *AliasNotFoundError) Error() string {
	return fmt.Sprintf("alias %q not found", e.Alias)
}

func (e *AliasNotFoundError) Is(target error) bool { return target == ErrAliasNotFound }

// ReloadFailedError means the alias content was written but the filter reload did not
// complete, so the change is persisted but not yet active.
type ReloadFailedError struct {
	Alias string
	Err   error
}

func (e *ReloadFailedError) Error() string {
	return fmt.Sprintf("alias %q written but reload failed: %v", e.Alias, e.Err)
}

func (e *ReloadFailedError) Unwrap() error { return e.Err }

func (e *ReloadFailedError) Is(target error) bool { return target == ErrReloadFailed }

// APIError represents an error response from the API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
