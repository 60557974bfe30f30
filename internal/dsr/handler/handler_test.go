package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"girok/internal/cache"
	"girok/internal/dsr/handler"
	"girok/internal/dsr/service"
	"girok/internal/dsr/store"
	"girok/internal/outbox"
	"girok/internal/platform/metrics"
	"girok/internal/platform/middleware"
	id "girok/pkg/domain"
	"girok/pkg/ident"
	txpkg "girok/pkg/platform/tx"
)

var sharedMetrics = metrics.New()

// staticValidator accepts exactly one cookie value. Keeps the handler tests
// off the full auth stack.
type staticValidator struct {
	token     string
	accountID id.AccountID
	sessionID id.SessionID
}

func (v staticValidator) ValidateSessionToken(_ context.Context, token string) (id.AccountID, id.SessionID, error) {
	if token != v.token {
		return id.AccountID{}, id.SessionID{}, errors.New("unknown session")
	}
	return v.accountID, v.sessionID, nil
}

type DSRHandlerSuite struct {
	suite.Suite
	router   chi.Router
	account  id.AccountID
	operator id.AccountID
}

func TestDSRHandlerSuite(t *testing.T) {
	suite.Run(t, new(DSRHandlerSuite))
}

func (s *DSRHandlerSuite) SetupTest() {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	logger := slog.Default()

	s.account = id.AccountID(ident.NewUUIDv7())
	s.operator = id.AccountID(ident.NewUUIDv7())
	svc := service.New(store.NewMemory(), outbox.NewMemory(), txpkg.Nop{},
		cache.NewMemory().WithClock(clock), cache.NewKeys("girok"),
		sharedMetrics, logger).WithClock(clock)
	h := handler.New(svc, logger)

	validator := staticValidator{
		token:     "session-token",
		accountID: s.account,
		sessionID: id.SessionID(ident.NewUUIDv7()),
	}
	s.router = chi.NewRouter()
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(validator, logger))
		h.RegisterSubject(r)
	})
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.RequireOperator)
		h.RegisterOperator(r)
	})
}

func (s *DSRHandlerSuite) do(method, path string, body any, decorate func(*http.Request)) *httptest.ResponseRecorder {
	s.T().Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *DSRHandlerSuite) asSubject(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-token"})
}

func (s *DSRHandlerSuite) asOperator(req *http.Request) {
	req.Header.Set("X-Operator-Id", s.operator.String())
}

func (s *DSRHandlerSuite) submit() string {
	s.T().Helper()
	rec := s.do(http.MethodPost, "/dsr-requests",
		map[string]string{"type": "ACCESS", "legal_basis": "GDPR"}, s.asSubject)
	require.Equal(s.T(), http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func (s *DSRHandlerSuite) TestSubmitRequiresSession() {
	rec := s.do(http.MethodPost, "/dsr-requests",
		map[string]string{"type": "ACCESS"}, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *DSRHandlerSuite) TestSubmitAndFetch() {
	requestID := s.submit()

	rec := s.do(http.MethodGet, "/dsr-requests/"+requestID, nil, s.asOperator)
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp struct {
		Status          string    `json:"status"`
		Deadline        time.Time `json:"deadline"`
		EscalationLevel string    `json:"escalation_level"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("PENDING", resp.Status)
	s.Equal("NONE", resp.EscalationLevel)
	s.Equal(time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), resp.Deadline)
}

func (s *DSRHandlerSuite) TestVerifyAndProcessFlow() {
	requestID := s.submit()

	rec := s.do(http.MethodPost, "/dsr-requests/"+requestID+"/verify", nil, s.asOperator)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/dsr-requests/"+requestID+"/process",
		map[string]string{"status": "IN_PROGRESS"}, s.asOperator)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	// An illegal jump surfaces as a 409 precondition failure.
	rec = s.do(http.MethodPost, "/dsr-requests/"+requestID+"/verify", nil, s.asOperator)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *DSRHandlerSuite) TestExtendDeadlineRequiresReason() {
	requestID := s.submit()
	rec := s.do(http.MethodPost, "/dsr-requests/"+requestID+"/extend-deadline",
		map[string]any{"extended_to": time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC)}, s.asOperator)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *DSRHandlerSuite) TestCancelOwnRequest() {
	requestID := s.submit()
	rec := s.do(http.MethodDelete, "/dsr-requests/"+requestID, nil, s.asSubject)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Status string `json:"status"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("CANCELLED", resp.Status)
}

func (s *DSRHandlerSuite) TestStatisticsRouteIsNotSwallowedByID() {
	s.submit()
	rec := s.do(http.MethodGet, "/dsr-requests/statistics", nil, s.asOperator)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var stats struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &stats))
	s.Equal(1, stats.Total)
	s.Equal(1, stats.Pending)

	rec = s.do(http.MethodGet, "/dsr-requests/overdue", nil, s.asOperator)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *DSRHandlerSuite) TestLogsEndpoint() {
	requestID := s.submit()
	s.do(http.MethodPost, "/dsr-requests/"+requestID+"/verify", nil, s.asOperator)

	rec := s.do(http.MethodGet, "/dsr-requests/"+requestID+"/logs", nil, s.asOperator)
	s.Require().Equal(http.StatusOK, rec.Code)
	var body struct {
		Data []struct {
			Action string `json:"action"`
		} `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body.Data, 2)
	s.Equal("SUBMITTED", body.Data[0].Action)
	s.Equal("VERIFIED", body.Data[1].Action)
}
