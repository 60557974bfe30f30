package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "girok/pkg/domain"
)

// SessionCookieName is the single edge cookie. The value is an opaque session
// ID; the session record lives server-side.
const SessionCookieName = "girok_session"

// SessionCookieMaxAge matches the refresh-token lifetime (14 days).
const SessionCookieMaxAge = 1209600

// SessionValidator resolves a cookie value to an authenticated session. The
// auth service implements this; middleware stays free of storage concerns.
type SessionValidator interface {
	ValidateSessionToken(ctx context.Context, token string) (id.AccountID, id.SessionID, error)
}

// BearerValidator resolves an Authorization bearer access token to its
// account, session, and jti. The auth service implements this.
type BearerValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (id.AccountID, id.SessionID, string, error)
}

// ServiceRegistry validates X-Service-Id values against the external service
// registry. Implementations cache positive answers.
type ServiceRegistry interface {
	ValidateService(ctx context.Context, serviceID id.ServiceID) error
}

// SetSessionCookie writes the edge session cookie with the required flags.
func SetSessionCookie(w http.ResponseWriter, sessionID id.SessionID) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID.String(),
		Path:     "/",
		MaxAge:   SessionCookieMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the edge session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireSession authenticates via the session cookie. Unknown, expired, or
// revoked sessions get 401; the validator error is logged, never surfaced.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeUnauthorized(w)
				return
			}

			ctx := r.Context()
			accountID, sessionID, err := validator.ValidateSessionToken(ctx, cookie.Value)
			if err != nil {
				logger.WarnContext(ctx, "session validation failed",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w)
				return
			}

			ctx = context.WithValue(ctx, ContextKeyAccountID, accountID)
			ctx = context.WithValue(ctx, ContextKeySessionID, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth authenticates the request. A presented bearer token is
// authoritative: when the Authorization header carries one it must validate,
// with no cookie fallback. Requests without a bearer token fall through to
// the session cookie.
func RequireAuth(sessions SessionValidator, tokens BearerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	cookieGuard := RequireSession(sessions, logger)
	return func(next http.Handler) http.Handler {
		fromCookie := cookieGuard(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				fromCookie.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			accountID, sessionID, jti, err := tokens.ValidateAccessToken(ctx, raw)
			if err != nil {
				logger.WarnContext(ctx, "access token rejected",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w)
				return
			}
			ctx = context.WithValue(ctx, ContextKeyAccountID, accountID)
			ctx = context.WithValue(ctx, ContextKeySessionID, sessionID)
			ctx = context.WithValue(ctx, ContextKeyTokenID, jti)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the Authorization bearer credential, empty when the
// header is absent or carries another scheme.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// RequireServiceID enforces a valid X-Service-Id header, checked against the
// service registry. Required on register/login.
func RequireServiceID(registry ServiceRegistry, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			serviceID, err := id.ParseServiceID(r.Header.Get("X-Service-Id"))
			if err != nil {
				writeUnauthorized(w)
				return
			}
			if err := registry.ValidateService(ctx, serviceID); err != nil {
				logger.WarnContext(ctx, "service id rejected",
					"service_id", serviceID.String(),
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w)
				return
			}
			ctx = context.WithValue(ctx, ContextKeyServiceID, serviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOperator enforces the X-Operator-Id identity header used by
// moderation endpoints.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operatorID, err := id.ParseAccountID(r.Header.Get("X-Operator-Id"))
		if err != nil {
			writeUnauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeyOperatorID, operatorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSubject enforces the X-Subject-Id identity header used by appeal
// submission.
func RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := id.ParseAccountID(r.Header.Get("X-Subject-Id"))
		if err != nil {
			writeUnauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeySubjectID, subjectID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"authentication required"}}`))
}
