package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is a sentinel error for "not found" cases
var ErrNotFound = errors.New("not found")

var (
	ErrRunInProgress   = errors.New("a clone run is already in progress")
	ErrAlreadyMapped   = errors.New("source id is already mapped")
	ErrEmptyCredential = errors.New("credential cannot be empty")
	ErrInvalidOptions  = errors.New("invalid clone options")
	ErrCancelled       = errors.New("clone run cancelled")
)

// Error kinds surfaced to callers alongside the terminal error message.
const (
	KindAuth               = "auth_error"
	KindRateLimitExhausted = "rate_limit_exhausted"
	KindPermission         = "permission_error"
	KindAPI                = "api_error"
	KindNetwork            = "network_error"
	KindCancelled          = "cancelled"
	KindInternal           = "internal_error"
)

// AuthError means the credential was rejected. It is never retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// RateLimitExhaustedError is returned once the retry budget for 429 responses is spent.
type RateLimitExhaustedError struct {
	Method    string
	Path      string
	Attempts  int
	LastDelay time.Duration
}

func (e *RateLimitExhaustedError) Error() string {
	return fmt.Sprintf(
		"rate limit retries exhausted for %s %s after %d attempts (last retry delay %s)",
		e.Method, e.Path, e.Attempts, e.LastDelay,
	)
}

// PermissionError is a 403 on a specific entity.
type PermissionError struct {
	Method  string
	Path    string
	Message string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("missing permissions for %s %s: %s", e.Method, e.Path, e.Message)
}

// APIError covers every other 4xx/5xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error %d (code %d) for %s %s: %s", e.StatusCode, e.Code, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("api error %d for %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

// NetworkError is a transport failure that outlived the retry budget.
type NetworkError struct {
	Method   string
	Path     string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s %s after %d attempts: %v", e.Method, e.Path, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsAuthError checks if an error is an AuthError
func IsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// IsRateLimitExhausted checks if an error is a RateLimitExhaustedError
func IsRateLimitExhausted(err error) (*RateLimitExhaustedError, bool) {
	var rlErr *RateLimitExhaustedError
	if errors.As(err, &rlErr) {
		return rlErr, true
	}
	return nil, false
}

// IsPermissionError checks if an error is a PermissionError
func IsPermissionError(err error) (*PermissionError, bool) {
	var permErr *PermissionError
	if errors.As(err, &permErr) {
		return permErr, true
	}
	return nil, false
}

// IsAPIError checks if an error is an APIError
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNetworkError checks if an error is a NetworkError
func IsNetworkError(err error) (*NetworkError, bool) {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr, true
	}
	return nil, false
}

// IsFatal reports whether err must abort the whole run rather than the current entity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := IsAuthError(err); ok {
		return true
	}
	if _, ok := IsRateLimitExhausted(err); ok {
		return true
	}
	if _, ok := IsNetworkError(err); ok {
		return true
	}
	return false
}

// ErrorKind maps an error onto the taxonomy kind string.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	}
	if _, ok := IsAuthError(err); ok {
		return KindAuth
	}
	if _, ok := IsRateLimitExhausted(err); ok {
		return KindRateLimitExhausted
	}
	if _, ok := IsPermissionError(err); ok {
		return KindPermission
	}
	if _, ok := IsAPIError(err); ok {
		return KindAPI
	}
	if _, ok := IsNetworkError(err); ok {
		return KindNetwork
	}
	return KindInternal
}

// IsNotFoundError checks if an error is a "not found" error
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.StatusCode == 404
}
