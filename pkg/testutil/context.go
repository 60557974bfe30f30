package testutil

import (
	"context"
	"net/http"

	"girok/internal/platform/middleware"
	id "girok/pkg/domain"
)

// WithAccountID injects an account ID the way the session guard would.
// Invalid IDs are silently ignored so tests can assert the anonymous path.
func WithAccountID(req *http.Request, accountID string) *http.Request {
	parsed, err := id.ParseAccountID(accountID)
	if err != nil {
		return req
	}
	ctx := context.WithValue(req.Context(), middleware.ContextKeyAccountID, parsed)
	return req.WithContext(ctx)
}

// WithSession injects both the account and session IDs, the state of a fully
// authenticated request.
func WithSession(req *http.Request, accountID, sessionID string) *http.Request {
	ctx := req.Context()
	if parsed, err := id.ParseAccountID(accountID); err == nil {
		ctx = context.WithValue(ctx, middleware.ContextKeyAccountID, parsed)
	}
	if parsed, err := id.ParseSessionID(sessionID); err == nil {
		ctx = context.WithValue(ctx, middleware.ContextKeySessionID, parsed)
	}
	return req.WithContext(ctx)
}

// WithOperatorID injects an operator identity the way RequireOperator would.
func WithOperatorID(req *http.Request, operatorID string) *http.Request {
	parsed, err := id.ParseAccountID(operatorID)
	if err != nil {
		return req
	}
	ctx := context.WithValue(req.Context(), middleware.ContextKeyOperatorID, parsed)
	return req.WithContext(ctx)
}
