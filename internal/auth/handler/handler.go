// Package handler exposes the authentication endpoints. Request and response
// shapes live in requests.go and responses.go; this file is wiring only.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"girok/internal/auth/models"
	"girok/internal/auth/service"
	"girok/internal/platform/middleware"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/platform/httputil"
)

// Service is the slice of the auth service the handler depends on.
type Service interface {
	Register(ctx context.Context, req service.RegisterRequest) (*service.RegisterResult, error)
	Login(ctx context.Context, req service.LoginRequest) (*service.LoginResult, error)
	LoginMFA(ctx context.Context, req service.LoginMFARequest) (*service.LoginResult, error)
	Logout(ctx context.Context, sessionID id.SessionID, jti string) error
	Refresh(ctx context.Context, refreshToken string) (*service.SessionTokens, error)
	ChangePassword(ctx context.Context, accountID id.AccountID, currentSessionID id.SessionID, currentPassword, newPassword string) error
	SetupMFA(ctx context.Context, accountID id.AccountID) (*service.MFASetupResult, error)
	EnableMFA(ctx context.Context, accountID id.AccountID, code string) ([]string, error)
	DisableMFA(ctx context.Context, accountID id.AccountID, password, method, code string) error
	RegenerateBackupCodes(ctx context.Context, accountID id.AccountID, password string) ([]string, error)
	ListSessions(ctx context.Context, accountID id.AccountID) ([]*models.Session, error)
	RevokeOtherSessions(ctx context.Context, accountID id.AccountID, current id.SessionID) (int, error)
}

// Handler wires auth endpoints to the auth service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the unauthenticated endpoints. The router guards them
// with the service-id check.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/login/mfa", h.HandleLoginMFA)
	r.Post("/auth/refresh", h.HandleRefresh)
}

// RegisterProtected mounts the endpoints behind the session guard.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/auth/logout", h.HandleLogout)
	r.Post("/auth/password", h.HandleChangePassword)
	r.Post("/auth/mfa/setup", h.HandleMFASetup)
	r.Post("/auth/mfa/enable", h.HandleMFAEnable)
	r.Post("/auth/mfa/disable", h.HandleMFADisable)
	r.Post("/auth/mfa/backup-codes", h.HandleRegenerateBackupCodes)
	r.Get("/auth/sessions", h.HandleListSessions)
	r.Delete("/auth/sessions", h.HandleRevokeOtherSessions)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[RegisterRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.Register(ctx, service.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		Username:  req.Username,
		Country:   req.Country,
		Locale:    req.Locale,
		Timezone:  req.Timezone,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logError(ctx, "registration failed", err)
		httputil.WriteError(w, err)
		return
	}
	// Registration logs the account in.
	middleware.SetSessionCookie(w, result.Session.SessionID)
	httputil.WriteJSON(w, http.StatusCreated, FromRegisterResult(result))
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[LoginRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.Login(ctx, service.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Context:   models.ContextUser,
	})
	if err != nil {
		h.logError(ctx, "login failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.writeLoginResult(w, result)
}

func (h *Handler) HandleLoginMFA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[LoginMFARequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.LoginMFA(ctx, service.LoginMFARequest{
		ChallengeID: req.ChallengeID,
		Method:      req.Method,
		Code:        req.Code,
		IPAddress:   clientIP(r),
		UserAgent:   r.UserAgent(),
		Context:     models.ContextUser,
	})
	if err != nil {
		h.logError(ctx, "mfa login failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.writeLoginResult(w, result)
}

// writeLoginResult sets the session cookie only on a completed login; a
// pending challenge carries no credentials.
func (h *Handler) writeLoginResult(w http.ResponseWriter, result *service.LoginResult) {
	if result.MFARequired {
		httputil.WriteJSON(w, http.StatusOK, FromChallenge(result))
		return
	}
	middleware.SetSessionCookie(w, result.Session.SessionID)
	httputil.WriteJSON(w, http.StatusOK, FromSessionTokens(result.Session))
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[RefreshRequest](w, r, h.logger)
	if !ok {
		return
	}
	tokens, err := h.service.Refresh(ctx, req.RefreshToken)
	if err != nil {
		h.logError(ctx, "token refresh failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSessionTokens(tokens))
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := middleware.GetSessionID(ctx)
	if err := h.service.Logout(ctx, sessionID, middleware.GetTokenID(ctx)); err != nil {
		h.logError(ctx, "logout failed", err)
		httputil.WriteError(w, err)
		return
	}
	middleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[ChangePasswordRequest](w, r, h.logger)
	if !ok {
		return
	}
	err := h.service.ChangePassword(ctx,
		middleware.GetAccountID(ctx), middleware.GetSessionID(ctx),
		req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.logError(ctx, "password change failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.service.SetupMFA(ctx, middleware.GetAccountID(ctx))
	if err != nil {
		h.logError(ctx, "mfa setup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MFASetupResponse{
		Secret:          result.Secret,
		ProvisioningURI: result.ProvisioningURI,
	})
}

func (h *Handler) HandleMFAEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[MFACodeRequest](w, r, h.logger)
	if !ok {
		return
	}
	codes, err := h.service.EnableMFA(ctx, middleware.GetAccountID(ctx), req.Code)
	if err != nil {
		h.logError(ctx, "mfa enable failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

func (h *Handler) HandleMFADisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[MFADisableRequest](w, r, h.logger)
	if !ok {
		return
	}
	err := h.service.DisableMFA(ctx, middleware.GetAccountID(ctx), req.Password, req.Method, req.Code)
	if err != nil {
		h.logError(ctx, "mfa disable failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[PasswordRequest](w, r, h.logger)
	if !ok {
		return
	}
	codes, err := h.service.RegenerateBackupCodes(ctx, middleware.GetAccountID(ctx), req.Password)
	if err != nil {
		h.logError(ctx, "backup code regeneration failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := h.service.ListSessions(ctx, middleware.GetAccountID(ctx))
	if err != nil {
		h.logError(ctx, "session list failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSessions(sessions, middleware.GetSessionID(ctx)))
}

func (h *Handler) HandleRevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	revoked, err := h.service.RevokeOtherSessions(ctx, middleware.GetAccountID(ctx), middleware.GetSessionID(ctx))
	if err != nil {
		h.logError(ctx, "session revocation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RevokedResponse{Revoked: revoked})
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx), "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx), "error", err)
}

// clientIP prefers the edge-supplied header over the socket peer.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
