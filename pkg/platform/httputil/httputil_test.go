package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "girok/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error hides the message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "pq: connection refused"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body ErrorBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "INTERNAL", body.Error.Code)
		assert.Equal(t, "internal error", body.Error.Message)
	})

	t.Run("client error keeps the message and details", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := dErrors.New(dErrors.CodeAccountLocked, "account temporarily locked").
			WithDetails(map[string]any{"retryAfterSeconds": 900})
		WriteError(w, err)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		var body ErrorBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "ACCOUNT_LOCKED", body.Error.Code)
		assert.Equal(t, "account temporarily locked", body.Error.Message)
		assert.EqualValues(t, 900, body.Error.Details["retryAfterSeconds"])
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, assert.AnError)
		require.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestDecode(t *testing.T) {
	logger := slog.Default()

	type payload struct {
		Email string `json:"email"`
	}

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com"}`))
		w := httptest.NewRecorder()
		req, ok := Decode[payload](w, r, logger)
		require.True(t, ok)
		assert.Equal(t, "a@b.com", req.Email)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com","x":1}`))
		w := httptest.NewRecorder()
		_, ok := Decode[payload](w, r, logger)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestNewListMeta(t *testing.T) {
	meta := NewListMeta(45, 2, 20)
	assert.Equal(t, 3, meta.TotalPages)
	assert.Equal(t, 45, meta.Total)

	empty := NewListMeta(0, 1, 20)
	assert.Equal(t, 0, empty.TotalPages)
}
