package middleware_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"girok/internal/platform/middleware"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
)

type stubSessions struct {
	accountID id.AccountID
	sessionID id.SessionID
}

func (s *stubSessions) ValidateSessionToken(ctx context.Context, token string) (id.AccountID, id.SessionID, error) {
	if token != s.sessionID.String() {
		return id.AccountID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	return s.accountID, s.sessionID, nil
}

type stubTokens struct {
	accountID id.AccountID
	sessionID id.SessionID
	raw       string
	jti       string
}

func (s *stubTokens) ValidateAccessToken(ctx context.Context, token string) (id.AccountID, id.SessionID, string, error) {
	if token != s.raw {
		return id.AccountID{}, id.SessionID{}, "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return s.accountID, s.sessionID, s.jti, nil
}

func TestRequireAuth(t *testing.T) {
	accountID := id.AccountID(ident.NewUUIDv7())
	sessionID := id.SessionID(ident.NewUUIDv7())
	sessions := &stubSessions{accountID: accountID, sessionID: sessionID}
	tokens := &stubTokens{accountID: accountID, sessionID: sessionID, raw: "good-token", jti: "jti-77"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotAccount id.AccountID
	var gotSession id.SessionID
	var gotJTI string
	guard := middleware.RequireAuth(sessions, tokens, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAccount = middleware.GetAccountID(r.Context())
			gotSession = middleware.GetSessionID(r.Context())
			gotJTI = middleware.GetTokenID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

	t.Run("bearer token admits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, accountID, gotAccount)
		assert.Equal(t, sessionID, gotSession)
		assert.Equal(t, "jti-77", gotJTI)
	})

	t.Run("cookie admits when no bearer is presented", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID.String()})
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, accountID, gotAccount)
		assert.Empty(t, gotJTI)
	})

	t.Run("bad bearer is rejected even with a valid cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer forged")
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID.String()})
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no credentials at all", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-bearer authorization scheme falls through to the cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID.String()})
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})
}
