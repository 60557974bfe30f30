package handler_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"girok/internal/auth/handler"
	"girok/internal/auth/handler/mocks"
	"girok/internal/auth/service"
	"girok/internal/platform/middleware"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
)

//go:generate mockgen -source=handler.go -destination=mocks/service_mock.go -package=mocks Service

func newRouter(svc handler.Service) chi.Router {
	h := handler.New(svc, slog.Default())
	r := chi.NewRouter()
	h.RegisterPublic(r)
	h.RegisterProtected(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleRegister(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc)

	accountID := id.AccountID(ident.NewUUIDv7())
	sessionID := id.SessionID(ident.NewUUIDv7())
	svc.EXPECT().Register(gomock.Any(), service.RegisterRequest{
		Email:     "new@example.com",
		Password:  "hunter2hunter2",
		Username:  "newbie",
		IPAddress: "192.0.2.1:1234",
	}).Return(&service.RegisterResult{
		AccountID:  accountID,
		ExternalID: "8M0kX29acD",
		Email:      "new@example.com",
		Session: &service.SessionTokens{
			SessionID:    sessionID,
			AccountID:    accountID,
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}, nil)

	rec := postJSON(t, router, "/auth/register", map[string]string{
		"email":    "new@example.com",
		"password": "hunter2hunter2",
		"username": "newbie",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, accountID.String(), resp["account_id"])
	assert.Equal(t, "8M0kX29acD", resp["external_id"])
	assert.Equal(t, "access-1", resp["access_token"])

	// Registration logs the account in.
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie, "register response did not set the session cookie")
	assert.Equal(t, sessionID.String(), cookie.Value)
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestHandleRegisterConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc)

	svc.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "email already registered"))

	rec := postJSON(t, router, "/auth/register", map[string]string{
		"email": "dup@example.com", "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "CONFLICT", body.Error.Code)
}

func TestHandleRegisterMalformedBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc)

	svc.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLoginSetsCookieOnSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc)

	sessionID := id.SessionID(ident.NewUUIDv7())
	svc.EXPECT().Login(gomock.Any(), gomock.Any()).Return(&service.LoginResult{
		Session: &service.SessionTokens{
			SessionID:    sessionID,
			AccountID:    id.AccountID(ident.NewUUIDv7()),
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}, nil)

	rec := postJSON(t, router, "/auth/login", map[string]string{
		"email": "a@b.com", "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, middleware.SessionCookieName, cookie.Name)
	assert.Equal(t, sessionID.String(), cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, middleware.SessionCookieMaxAge, cookie.MaxAge)
}

func TestHandleLoginMFAChallengeSetsNoCookie(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc)

	svc.EXPECT().Login(gomock.Any(), gomock.Any()).Return(&service.LoginResult{
		MFARequired:  true,
		ChallengeID:  "ch-1",
		Methods:      []string{"totp", "backup_code"},
		ChallengeTTL: 5 * time.Minute,
	}, nil)

	rec := postJSON(t, router, "/auth/login", map[string]string{
		"email": "a@b.com", "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["mfa_required"])
	assert.Equal(t, "ch-1", resp["challenge_id"])
	assert.EqualValues(t, 300, resp["expires_in"])
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc)

	svc.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password"))

	rec := postJSON(t, router, "/auth/login", map[string]string{
		"email": "a@b.com", "password": "nope12345",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLogoutClearsCookie(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc)

	svc.EXPECT().Logout(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
