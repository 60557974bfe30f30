package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct error", func(t *testing.T) {
		err := New(CodeConflict, "email already registered")
		assert.True(t, HasCode(err, CodeConflict))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("matches wrapped error", func(t *testing.T) {
		inner := New(CodeNotFound, "sanction not found")
		err := fmt.Errorf("load sanction: %w", inner)
		assert.True(t, HasCode(err, CodeNotFound))
	})

	t.Run("does not match plain errors", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Wrap(cause, CodeDependencyUnavailable, "storage unavailable")
	require.ErrorIs(t, err, cause)
	// The user-safe message must not leak the cause through the envelope.
	assert.Equal(t, "storage unavailable", err.Message)
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidInput:          http.StatusBadRequest,
		CodeInvalidCredentials:    http.StatusUnauthorized,
		CodeInvalidMfaCode:        http.StatusUnauthorized,
		CodeAccountLocked:         http.StatusUnauthorized,
		CodeUnauthorized:          http.StatusUnauthorized,
		CodeForbidden:             http.StatusForbidden,
		CodeNotFound:              http.StatusNotFound,
		CodeConflict:              http.StatusConflict,
		CodePrecondition:          http.StatusConflict,
		CodeDependencyUnavailable: http.StatusServiceUnavailable,
		CodeInternal:              http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}

func TestWithDetails(t *testing.T) {
	base := New(CodeAccountLocked, "account temporarily locked")
	detailed := base.WithDetails(map[string]any{"retryAfterSeconds": 900})
	assert.Nil(t, base.Details)
	assert.Equal(t, 900, detailed.Details["retryAfterSeconds"])
	assert.Equal(t, base.Code, detailed.Code)
}
