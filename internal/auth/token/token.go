// Package token mints and validates the HS256 access tokens carried by
// clients between refreshes. Every token gets a jti so individual tokens can
// be revoked ahead of their natural expiry.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
)

// Claims are the access-token claims. Scope distinguishes fully
// authenticated tokens from the limited pre-MFA ones.
type Claims struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	Scope     string `json:"scope"`
	jwt.RegisteredClaims
}

const (
	ScopeFull   = "full"
	ScopePreMFA = "pre_mfa"
)

// Revocations answers whether a jti has been revoked. Lookup errors must
// propagate; the caller treats them as a denial.
type Revocations interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Service signs and validates access tokens.
type Service struct {
	signingKey  []byte
	issuer      string
	audience    string
	lifetime    time.Duration
	revocations Revocations
}

func NewService(signingKey, issuer, audience string, lifetime time.Duration, revocations Revocations) *Service {
	return &Service{
		signingKey:  []byte(signingKey),
		issuer:      issuer,
		audience:    audience,
		lifetime:    lifetime,
		revocations: revocations,
	}
}

// Lifetime is the configured access-token lifetime, exposed so revocation
// entries can expire with the last token they could ever cover.
func (s *Service) Lifetime() time.Duration { return s.lifetime }

// Mint signs a new access token and returns it with its jti and expiry.
func (s *Service) Mint(accountID domain.AccountID, sessionID domain.SessionID, mode, scope string) (string, string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.lifetime)
	jti := ident.NewUUIDv7().String()
	claims := Claims{
		AccountID: accountID.String(),
		SessionID: sessionID.String(),
		Mode:      mode,
		Scope:     scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, expiresAt, nil
}

// Validate parses and verifies the token, then checks the revocation list.
// A revocation-lookup failure denies the token rather than admitting it.
func (s *Service) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "revocation check failed")
		}
		if revoked {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
		}
	}
	return claims, nil
}

// ParsedAccountID parses the subject account from validated claims.
func (c *Claims) ParsedAccountID() (domain.AccountID, error) {
	return domain.ParseAccountID(c.AccountID)
}

// ParsedSessionID parses the session the token was minted for.
func (c *Claims) ParsedSessionID() (domain.SessionID, error) {
	return domain.ParseSessionID(c.SessionID)
}
