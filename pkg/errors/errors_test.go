package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"expired token", ErrTokenExpired, http.StatusUnauthorized},
		{"not a member", ErrNotMember, http.StatusForbidden},
		{"room missing", fmt.Errorf("load: %w", ErrRoomNotFound), http.StatusNotFound},
		{"validation", Validation("message", "must not be empty"), http.StatusUnprocessableEntity},
		{"already member", ErrAlreadyMember, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusFromError(tt.err))
		})
	}
}

func TestFromHTTPStatus_RoundTrip(t *testing.T) {
	for _, base := range []error{ErrUnauthenticated, ErrUnauthorized, ErrNotFound, ErrValidation, ErrConflict} {
		status := HTTPStatusFromError(base)
		assert.ErrorIs(t, FromHTTPStatus(status, "x"), base)
	}

	assert.ErrorIs(t, FromHTTPStatus(http.StatusBadGateway, ""), ErrTransientNetwork)
	assert.ErrorIs(t, FromHTTPStatus(http.StatusTooManyRequests, "slow down"), ErrTransientNetwork)
	assert.True(t, IsRetryable(FromHTTPStatus(http.StatusServiceUnavailable, "")))
	assert.False(t, IsRetryable(FromHTTPStatus(http.StatusForbidden, "")))
}

func TestToAPIError_HidesInternalMessages(t *testing.T) {
	apiErr := ToAPIError(errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Code)
	assert.Equal(t, "internal server error", apiErr.Message)

	apiErr = ToAPIError(Validation("message", "too long"))
	assert.Equal(t, "message", apiErr.Field)
	assert.Equal(t, "too long", apiErr.Message)
}
