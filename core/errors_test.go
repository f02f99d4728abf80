package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  string
		fatal bool
	}{
		{"nil", nil, "", false},
		{"auth", &AuthError{Message: "401 Unauthorized"}, KindAuth, true},
		{"rate limit", &RateLimitExhaustedError{Method: "POST", Path: "guilds/1/roles", Attempts: 4, LastDelay: 2 * time.Second}, KindRateLimitExhausted, true},
		{"permission", &PermissionError{Method: "POST", Path: "guilds/1/roles", Message: "Missing Permissions"}, KindPermission, false},
		{"api", &APIError{Method: "POST", Path: "guilds/1/channels", StatusCode: 400, Message: "Invalid Form Body"}, KindAPI, false},
		{"network", &NetworkError{Method: "GET", Path: "users/@me", Attempts: 4, Err: errors.New("connection reset")}, KindNetwork, true},
		{"wrapped auth", fmt.Errorf("failed to verify source: %w", &AuthError{Message: "bad token"}), KindAuth, true},
		{"cancelled", ErrCancelled, KindCancelled, false},
		{"other", errors.New("boom"), KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, ErrorKind(tt.err))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestRateLimitExhaustedError_CarriesLastDelay(t *testing.T) {
	err := fmt.Errorf("failed to create role: %w", &RateLimitExhaustedError{
		Method:    "POST",
		Path:      "guilds/1/roles",
		Attempts:  4,
		LastDelay: 1500 * time.Millisecond,
	})

	rlErr, ok := IsRateLimitExhausted(err)
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, rlErr.LastDelay)
	assert.Contains(t, err.Error(), "1.5s")
}

func TestNetworkError_Unwraps(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := &NetworkError{Method: "GET", Path: "guilds/1", Attempts: 4, Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(&APIError{StatusCode: 404, Message: "Unknown Guild"}))
	assert.False(t, IsNotFoundError(&APIError{StatusCode: 400}))
	assert.False(t, IsNotFoundError(nil))
}
