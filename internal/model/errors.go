package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAuthExpired     = errors.New("access credential rejected")
	ErrRefreshFailed   = errors.New("session refresh failed, re-authentication required")
	ErrNetwork         = errors.New("no response from server")
	ErrSyncFailed      = errors.New("cart sync failed")
	ErrItemNotInCart   = errors.New("item not in cart")
	ErrInvalidProduct  = errors.New("product has no id")
	ErrWaiterQueueFull = errors.New("refresh waiter queue is full")

	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrMissingNote       = errors.New("note is required for cancelled/refunded")
	ErrUnknownStatus     = errors.New("unknown order status")
)

// ValidationError is a 4xx business-rule rejection returned by the server.
type ValidationError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", e.Status, e.Message)
}

// NetworkError means the request never produced a response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is lets callers match any NetworkError with errors.Is(err, ErrNetwork).
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ServerError is a 5xx response.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}
