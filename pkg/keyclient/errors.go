package keyclient

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Client methods.
var (
	ErrKeyNotFound       = errors.New("key not found")
	ErrKeyExists         = errors.New("key already exists")
	ErrInvalidSpec       = errors.New("invalid request")
	ErrDeviceNotBound    = errors.New("device not bound to key")
	ErrServerUnavailable = errors.New("key server storage unavailable")
)

// ServerError is an error response from the key server.
// The server returns errors as {"error": {"code": "...", "message": "..."}}.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: [%s] %s", e.StatusCode, e.Code, e.Message)
}

// mapServerError converts se to a sentinel error when its code is known.
// The result matches the sentinel with errors.Is and se with errors.As.
func mapServerError(se *ServerError) error {
	var sentinel error
	switch se.Code {
	case "NOT_FOUND":
		sentinel = ErrKeyNotFound
	case "ALREADY_EXISTS":
		sentinel = ErrKeyExists
	case "INVALID_SPEC":
		sentinel = ErrInvalidSpec
	case "NOT_BOUND":
		sentinel = ErrDeviceNotBound
	case "STORE_UNAVAILABLE", "REMOTE_SYNC_CONFLICT":
		sentinel = ErrServerUnavailable
	default:
		return se
	}
	return &mappedError{sentinel: sentinel, server: se}
}

type mappedError struct {
	sentinel error
	server   *ServerError
}

func (e *mappedError) Error() string {
	return e.sentinel.Error() + ": " + e.server.Message
}

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) As(target any) bool {
	if t, ok := target.(**ServerError); ok {
		*t = e.server
		return true
	}
	return false
}

func (e *mappedError) Unwrap() error {
	return e.sentinel
}
