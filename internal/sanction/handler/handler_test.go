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

	"girok/internal/cache"
	"girok/internal/outbox"
	"girok/internal/platform/metrics"
	"girok/internal/platform/middleware"
	"girok/internal/sanction/handler"
	"girok/internal/sanction/service"
	"girok/internal/sanction/store"
	id "girok/pkg/domain"
	"girok/pkg/ident"
	txpkg "girok/pkg/platform/tx"
)

var sharedMetrics = metrics.New()

type fixture struct {
	router   chi.Router
	events   *outbox.MemoryStore
	operator id.AccountID
	subject  id.AccountID
}

// newFixture wires the handler to the real engine over memory backends, with
// the identity-header guards installed the way the router does it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	events := outbox.NewMemory()
	svc := service.New(store.NewMemory(), events, txpkg.Nop{},
		cache.NewMemory(), cache.NewKeys("girok"), sharedMetrics, slog.Default())
	h := handler.New(svc, slog.Default())

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOperator)
		h.RegisterOperator(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSubject)
		h.RegisterSubject(r)
	})
	h.RegisterEnforcement(r)

	return &fixture{
		router:   r,
		events:   events,
		operator: id.AccountID(ident.NewUUIDv7()),
		subject:  id.AccountID(ident.NewUUIDv7()),
	}
}

func (f *fixture) do(t *testing.T, method, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) issueBan(t *testing.T, d time.Duration) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sanctions", map[string]any{
		"subject_id":   f.subject.String(),
		"subject_type": "ACCOUNT",
		"type":         "TEMPORARY_BAN",
		"severity":     3,
		"reason":       "spam wave",
		"end_at":       time.Now().UTC().Add(d).Format(time.RFC3339),
	}, map[string]string{"X-Operator-Id": f.operator.String()})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp["id"].(string)
}

func TestCreateRequiresOperatorHeader(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/sanctions", map[string]any{
		"subject_id":   f.subject.String(),
		"subject_type": "ACCOUNT",
		"type":         "WARNING",
		"severity":     1,
		"reason":       "abuse",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.events.All())
}

func TestCreateAndFetch(t *testing.T) {
	f := newFixture(t)
	sanctionID := f.issueBan(t, time.Hour)

	rec := f.do(t, http.MethodGet, "/sanctions/"+sanctionID, nil,
		map[string]string{"X-Operator-Id": f.operator.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ACTIVE", resp["status"])
	assert.Equal(t, f.subject.String(), resp["subject_id"])
	assert.Equal(t, f.operator.String(), resp["issuer_id"])

	all := f.events.ByType(outbox.EventSanctionApplied)
	require.Len(t, all, 1)
}

func TestCreateRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/sanctions", map[string]any{
		"subject_id":   f.subject.String(),
		"subject_type": "ACCOUNT",
		"type":         "SHADOW_BAN",
		"severity":     1,
		"reason":       "abuse",
	}, map[string]string{"X-Operator-Id": f.operator.String()})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INVALID_INPUT", body.Error.Code)
}

func TestListEnvelope(t *testing.T) {
	f := newFixture(t)
	f.issueBan(t, time.Hour)
	f.issueBan(t, 2*time.Hour)

	rec := f.do(t, http.MethodGet, "/sanctions?subject_id="+f.subject.String()+"&limit=1", nil,
		map[string]string{"X-Operator-Id": f.operator.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Total      int `json:"total"`
			Page       int `json:"page"`
			Limit      int `json:"limit"`
			TotalPages int `json:"totalPages"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 2, body.Meta.Total)
	assert.Equal(t, 2, body.Meta.TotalPages)
}

func TestAppealRequiresSubjectHeaderAndOwnership(t *testing.T) {
	f := newFixture(t)
	sanctionID := f.issueBan(t, time.Hour)

	rec := f.do(t, http.MethodPost, "/sanctions/"+sanctionID+"/appeal",
		map[string]string{"reason": "false positive"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	stranger := id.AccountID(ident.NewUUIDv7())
	rec = f.do(t, http.MethodPost, "/sanctions/"+sanctionID+"/appeal",
		map[string]string{"reason": "false positive"},
		map[string]string{"X-Subject-Id": stranger.String()})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/sanctions/"+sanctionID+"/appeal",
		map[string]string{"reason": "false positive"},
		map[string]string{"X-Subject-Id": f.subject.String()})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "PENDING", resp["appeal_status"])
}

func TestApprovedAppealRevokesSanction(t *testing.T) {
	f := newFixture(t)
	sanctionID := f.issueBan(t, time.Hour)

	rec := f.do(t, http.MethodPost, "/sanctions/"+sanctionID+"/appeal",
		map[string]string{"reason": "false positive"},
		map[string]string{"X-Subject-Id": f.subject.String()})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/sanctions/"+sanctionID+"/appeal/review",
		map[string]string{"decision": "UNDER_REVIEW"},
		map[string]string{"X-Operator-Id": f.operator.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/sanctions/"+sanctionID+"/appeal/review",
		map[string]string{"decision": "APPROVED", "response": "evidence was stale"},
		map[string]string{"X-Operator-Id": f.operator.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "REVOKED", resp["status"])
	assert.Equal(t, "APPROVED", resp["appeal_status"])
}

func TestActiveSetQuery(t *testing.T) {
	f := newFixture(t)
	f.issueBan(t, time.Hour)

	rec := f.do(t, http.MethodGet,
		"/sanctions/active?subject_id="+f.subject.String()+"&subject_type=ACCOUNT", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sanctions           []map[string]any `json:"sanctions"`
		RestrictedFeatures  []string         `json:"restricted_features"`
		IsPermanentlyBanned bool             `json:"is_permanently_banned"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Sanctions, 1)
	assert.False(t, resp.IsPermanentlyBanned)
}

func TestRevokeEndpoint(t *testing.T) {
	f := newFixture(t)
	sanctionID := f.issueBan(t, time.Hour)

	rec := f.do(t, http.MethodPost, "/sanctions/"+sanctionID+"/revoke",
		map[string]string{"reason": "issued in error"},
		map[string]string{"X-Operator-Id": f.operator.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	// Terminal: a second revoke conflicts.
	rec = f.do(t, http.MethodPost, "/sanctions/"+sanctionID+"/revoke",
		map[string]string{"reason": "again"},
		map[string]string{"X-Operator-Id": f.operator.String()})
	require.Equal(t, http.StatusConflict, rec.Code)
}
