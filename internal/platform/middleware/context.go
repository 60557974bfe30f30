// Package middleware provides the explicit HTTP middleware chain: request
// identity, logging, recovery, timeouts, and the auth guards that replace
// per-route decorators. The authoritative route policy table lives in
// internal/transport/http.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	id "girok/pkg/domain"
)

type contextKeyRequestID struct{}
type contextKeyAccountID struct{}
type contextKeySessionID struct{}
type contextKeyTokenID struct{}
type contextKeyOperatorID struct{}
type contextKeySubjectID struct{}
type contextKeyServiceID struct{}

var (
	ContextKeyRequestID  = contextKeyRequestID{}
	ContextKeyAccountID  = contextKeyAccountID{}
	ContextKeySessionID  = contextKeySessionID{}
	ContextKeyTokenID    = contextKeyTokenID{}
	ContextKeyOperatorID = contextKeyOperatorID{}
	ContextKeySubjectID  = contextKeySubjectID{}
	ContextKeyServiceID  = contextKeyServiceID{}
)

// GetRequestID retrieves the correlation ID for the current request.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyRequestID).(string)
	return v
}

// GetAccountID retrieves the authenticated account, zero when anonymous.
func GetAccountID(ctx context.Context) id.AccountID {
	v, _ := ctx.Value(ContextKeyAccountID).(id.AccountID)
	return v
}

// GetSessionID retrieves the session backing the current request.
func GetSessionID(ctx context.Context) id.SessionID {
	v, _ := ctx.Value(ContextKeySessionID).(id.SessionID)
	return v
}

// GetTokenID retrieves the jti of the bearer token that authenticated the
// request, empty on cookie-authenticated requests.
func GetTokenID(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyTokenID).(string)
	return v
}

// GetOperatorID retrieves the operator identity from X-Operator-Id.
func GetOperatorID(ctx context.Context) id.AccountID {
	v, _ := ctx.Value(ContextKeyOperatorID).(id.AccountID)
	return v
}

// GetSubjectID retrieves the subject identity from X-Subject-Id.
func GetSubjectID(ctx context.Context) id.AccountID {
	v, _ := ctx.Value(ContextKeySubjectID).(id.AccountID)
	return v
}

// GetServiceID retrieves the validated X-Service-Id.
func GetServiceID(ctx context.Context) id.ServiceID {
	v, _ := ctx.Value(ContextKeyServiceID).(id.ServiceID)
	return v
}

// RequestID assigns a random correlation ID to each request unless the edge
// already supplied one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			var buf [12]byte
			_, _ = rand.Read(buf[:])
			requestID = hex.EncodeToString(buf[:])
		}
		ctx := context.WithValue(r.Context(), ContextKeyRequestID, requestID)
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
