// Package e2e drives the assembled HTTP surface end to end: real router,
// middleware chain, services, and in-memory stores. Only the external
// backends (Postgres, Redis, Kafka) are swapped for memory implementations.
package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	authhandler "girok/internal/auth/handler"
	"girok/internal/auth/registry"
	authservice "girok/internal/auth/service"
	"girok/internal/auth/store/account"
	"girok/internal/auth/store/attempt"
	"girok/internal/auth/store/challenge"
	"girok/internal/auth/store/mfa"
	"girok/internal/auth/store/session"
	"girok/internal/auth/token"
	"girok/internal/cache"
	consenthandler "girok/internal/consent/handler"
	consentservice "girok/internal/consent/service"
	consentstore "girok/internal/consent/store"
	dsrhandler "girok/internal/dsr/handler"
	dsrservice "girok/internal/dsr/service"
	dsrstore "girok/internal/dsr/store"
	legalhandler "girok/internal/legal/handler"
	legalservice "girok/internal/legal/service"
	"girok/internal/legal/store/document"
	"girok/internal/legal/store/law"
	"girok/internal/outbox"
	"girok/internal/platform/config"
	"girok/internal/platform/metrics"
	"girok/internal/platform/middleware"
	sanctionhandler "girok/internal/sanction/handler"
	sanctionservice "girok/internal/sanction/service"
	sanctionstore "girok/internal/sanction/store"
	httptransport "girok/internal/transport/http"
	id "girok/pkg/domain"
	"girok/pkg/ident"
	txpkg "girok/pkg/platform/tx"
	"girok/pkg/testutil"
)

var sharedMetrics = metrics.New()

type E2ESuite struct {
	suite.Suite

	router    chi.Router
	serviceID string
	operator  string
	events    *outbox.MemoryStore
}

func TestE2ESuite(t *testing.T) {
	suite.Run(t, new(E2ESuite))
}

func (s *E2ESuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := cache.NewMemory()
	keys := cache.NewKeys("girok")
	s.events = outbox.NewMemory()
	s.operator = ident.NewUUIDv7().String()

	revocations := cache.NewTokenRevocations(mem, keys)
	tokens := token.NewService("e2e-signing-key-at-least-32-bytes!!", "girok", "girok-clients",
		time.Hour, revocations)

	authSvc := authservice.New(
		account.NewMemory(), session.NewMemory(), attempt.NewMemory(), mfa.NewMemory(),
		challenge.New(mem, keys), tokens, revocations, s.events, txpkg.Nop{},
		config.AuthConfig{
			MaxFailedAttempts:    5,
			FailureWindow:        15 * time.Minute,
			LockDuration:         15 * time.Minute,
			AccessTokenLifetime:  time.Hour,
			RefreshTokenLifetime: 14 * 24 * time.Hour,
			ActivitySlideEvery:   time.Minute,
			ChallengeTTL:         5 * time.Minute,
		}, sharedMetrics, logger)

	svcID := id.ServiceID(ident.NewUUIDv7())
	s.serviceID = svcID.String()
	services := registry.New(registry.NewMemory(&registry.Service{
		ID: svcID, Name: "storefront", Active: true, CreatedAt: time.Now(),
	}), mem, keys)

	legalSvc := legalservice.New(document.NewMemory(), law.NewMemory(), txpkg.Nop{}, mem, keys, logger)
	s.Require().NoError(legalSvc.SeedLaws(context.Background()))
	sanctionSvc := sanctionservice.New(sanctionstore.NewMemory(), s.events, txpkg.Nop{}, mem, keys, sharedMetrics, logger)
	consentSvc := consentservice.New(consentstore.NewMemory(), legalSvc, s.events, txpkg.Nop{}, mem, keys, sharedMetrics, logger)
	dsrSvc := dsrservice.New(dsrstore.NewMemory(), s.events, txpkg.Nop{}, mem, keys, sharedMetrics, logger)

	s.router = httptransport.NewRouter(httptransport.Deps{
		Logger:    logger,
		Sessions:  authSvc,
		Tokens:    authSvc,
		Services:  services,
		Health:    httptransport.NewHealth(nil, nil),
		Auth:      authhandler.New(authSvc, logger),
		Sanctions: sanctionhandler.New(sanctionSvc, logger),
		Legal:     legalhandler.New(legalSvc, logger),
		Consents:  consenthandler.New(consentSvc, logger),
		DSR:       dsrhandler.New(dsrSvc, logger),
	})
}

func (s *E2ESuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, req)
}

func (s *E2ESuite) asService(req *http.Request) *http.Request {
	req.Header.Set("X-Service-Id", s.serviceID)
	return req
}

func (s *E2ESuite) asOperator(req *http.Request) *http.Request {
	req.Header.Set("X-Operator-Id", s.operator)
	return req
}

// registerAndLogin walks the public auth surface and returns the account ID
// and session cookie.
func (s *E2ESuite) registerAndLogin(email string) (string, *http.Cookie) {
	rec := s.do(s.asService(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
		map[string]string{"email": email, "password": "hunter2hunter2", "country": "KR"})))
	testutil.AssertStatus(s.T(), rec, http.StatusCreated)
	accountID := testutil.UnmarshalResponse[struct {
		AccountID string `json:"account_id"`
	}](s.T(), rec).AccountID

	rec = s.do(s.asService(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": "hunter2hunter2"})))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == middleware.SessionCookieName {
			return accountID, cookie
		}
	}
	s.T().Fatal("login did not set the session cookie")
	return "", nil
}

// cutDocument publishes a legal document version and returns its ID.
func (s *E2ESuite) cutDocument(docType string) string {
	effective := time.Now().Add(-time.Hour)
	rec := s.do(s.asOperator(testutil.NewJSONRequest(s.T(), http.MethodPost, "/legal/documents",
		map[string]any{
			"type":           docType,
			"version":        "1.0.0",
			"locale":         "en",
			"title":          "Marketing Email Consent",
			"body":           "We would like to send you marketing email.",
			"effective_date": effective,
		})))
	testutil.AssertStatus(s.T(), rec, http.StatusCreated)
	return testutil.UnmarshalResponse[struct {
		ID string `json:"id"`
	}](s.T(), rec).ID
}

func (s *E2ESuite) TestHealthAndMetricsAreUnguarded() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
}

func (s *E2ESuite) TestAuthSurfaceRequiresServiceID() {
	body := map[string]string{"email": "gate@example.com", "password": "hunter2hunter2"}

	rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", body))
	testutil.AssertStatus(s.T(), rec, http.StatusUnauthorized)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", body)
	req.Header.Set("X-Service-Id", ident.NewUUIDv7().String())
	rec = s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusUnauthorized)
}

func (s *E2ESuite) TestRegisterIsImmediatelyAuthenticated() {
	rec := s.do(s.asService(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
		map[string]string{"email": "firstrun@example.com", "password": "hunter2hunter2"})))
	testutil.AssertStatus(s.T(), rec, http.StatusCreated)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	s.Require().NotNil(cookie, "register response did not set the session cookie")

	// The registration session works without a separate login.
	req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	req.AddCookie(cookie)
	rec = s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	sessions := testutil.UnmarshalResponse[struct {
		Sessions []struct {
			Current bool `json:"current"`
		} `json:"sessions"`
	}](s.T(), rec)
	s.Require().Len(sessions.Sessions, 1)
	s.True(sessions.Sessions[0].Current)
}

func (s *E2ESuite) TestBearerTokenAuthenticatesAndDiesOnLogout() {
	rec := s.do(s.asService(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
		map[string]string{"email": "bearer@example.com", "password": "hunter2hunter2"})))
	testutil.AssertStatus(s.T(), rec, http.StatusCreated)
	accessToken := testutil.UnmarshalResponse[struct {
		AccessToken string `json:"access_token"`
	}](s.T(), rec).AccessToken
	s.Require().NotEmpty(accessToken)

	// The bearer token alone reaches protected endpoints; no cookie involved.
	req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusOK)

	// A garbage token is rejected outright, with no cookie fallback.
	req = httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusUnauthorized)

	// Logout revokes the presented token's jti along with the session.
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusNoContent)

	req = httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusUnauthorized)
}

func (s *E2ESuite) TestConsentJourney() {
	_, cookie := s.registerAndLogin("consent@example.com")
	documentID := s.cutDocument("MARKETING_EMAIL")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/consents",
		map[string]string{"document_id": documentID})
	req.AddCookie(cookie)
	rec := s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusCreated)
	consentID := testutil.UnmarshalResponse[struct {
		ID string `json:"id"`
	}](s.T(), rec).ID

	req = httptest.NewRequest(http.MethodGet, "/consents/status?document_id="+documentID, nil)
	req.AddCookie(cookie)
	rec = s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	s.True(testutil.UnmarshalResponse[struct {
		Granted bool `json:"granted"`
	}](s.T(), rec).Granted)

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/consents/"+consentID+"/withdraw", nil)
	req.AddCookie(cookie)
	rec = s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusOK)

	req = httptest.NewRequest(http.MethodGet, "/consents/status?document_id="+documentID, nil)
	req.AddCookie(cookie)
	rec = s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	s.False(testutil.UnmarshalResponse[struct {
		Granted bool `json:"granted"`
	}](s.T(), rec).Granted)

	s.Len(s.events.ByType(outbox.EventConsentGranted), 1)
	s.Len(s.events.ByType(outbox.EventConsentWithdrawn), 1)
}

func (s *E2ESuite) TestSanctionEnforcementAndAppeal() {
	subjectID, _ := s.registerAndLogin("subject@example.com")

	rec := s.do(s.asOperator(testutil.NewJSONRequest(s.T(), http.MethodPost, "/sanctions",
		map[string]any{
			"subject_id":          subjectID,
			"subject_type":        "ACCOUNT",
			"type":                "FEATURE_RESTRICTION",
			"severity":            2,
			"restricted_features": []string{"Chat ", "upload", "chat"},
			"reason":              "spam reports",
		})))
	testutil.AssertStatus(s.T(), rec, http.StatusCreated)
	sanctionID := testutil.UnmarshalResponse[struct {
		ID string `json:"id"`
	}](s.T(), rec).ID

	req := httptest.NewRequest(http.MethodGet, "/sanctions/active?subject_id="+subjectID, nil)
	rec = s.do(s.asService(req))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	active := testutil.UnmarshalResponse[struct {
		RestrictedFeatures  []string `json:"restricted_features"`
		IsPermanentlyBanned bool     `json:"is_permanently_banned"`
	}](s.T(), rec)
	s.Equal([]string{"chat", "upload"}, active.RestrictedFeatures)
	s.False(active.IsPermanentlyBanned)

	appeal := testutil.NewJSONRequest(s.T(), http.MethodPost, "/sanctions/"+sanctionID+"/appeal",
		map[string]string{"reason": "these reports are mistaken"})
	appeal.Header.Set("X-Subject-Id", subjectID)
	rec = s.do(appeal)
	testutil.AssertStatus(s.T(), rec, http.StatusCreated)

	rec = s.do(s.asOperator(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/sanctions/"+sanctionID+"/appeal/review", map[string]string{"decision": "UNDER_REVIEW"})))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	rec = s.do(s.asOperator(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/sanctions/"+sanctionID+"/appeal/review",
		map[string]string{"decision": "APPROVED", "response": "benefit of the doubt"})))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)

	// An approved appeal revokes the sanction; the active set empties.
	req = httptest.NewRequest(http.MethodGet, "/sanctions/active?subject_id="+subjectID, nil)
	rec = s.do(s.asService(req))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	s.Empty(testutil.UnmarshalResponse[struct {
		RestrictedFeatures []string `json:"restricted_features"`
	}](s.T(), rec).RestrictedFeatures)
}

func (s *E2ESuite) TestDSRJourney() {
	_, cookie := s.registerAndLogin("dsr@example.com")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/dsr-requests",
		map[string]string{"type": "ACCESS", "legal_basis": "GDPR"})
	req.AddCookie(cookie)
	rec := s.do(req)
	testutil.AssertStatus(s.T(), rec, http.StatusCreated)
	requestID := testutil.UnmarshalResponse[struct {
		ID string `json:"id"`
	}](s.T(), rec).ID

	rec = s.do(s.asOperator(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/dsr-requests/"+requestID+"/verify", nil)))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)

	rec = s.do(s.asOperator(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/dsr-requests/"+requestID+"/process", map[string]string{"status": "IN_PROGRESS"})))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)

	rec = s.do(s.asOperator(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/dsr-requests/"+requestID+"/process", map[string]string{
			"status":        "COMPLETED",
			"response_type": "EXPORT",
			"response_body": "s3://exports/dsr.zip",
		})))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)

	rec = s.do(s.asOperator(httptest.NewRequest(http.MethodGet,
		"/dsr-requests/"+requestID+"/logs", nil)))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	logs := testutil.UnmarshalResponse[struct {
		Data []struct {
			Action string `json:"action"`
		} `json:"data"`
	}](s.T(), rec)
	s.Len(logs.Data, 4)

	s.Len(s.events.ByType(outbox.EventDSRSubmitted), 1)
	s.Len(s.events.ByType(outbox.EventDSRStatusChanged), 3)
}
