// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrMarketClosed       = errors.New("market is closed")
)

// APIError represents a failed call against the broker API.
type APIError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *APIError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("kite api [%s] %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("kite api [%s]: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new APIError.
func NewAPIError(op, symbol string, err error) *APIError {
	return &APIError{
		Op:     op,
		Symbol: symbol,
		Err:    err,
	}
}
