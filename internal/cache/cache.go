// Package cache is the shared distributed cache: namespaced keys, fixed TTL
// classes, single-flight computation under a short named lock, and the
// fail-secure token-revocation lookup used by the auth guard.
package cache

import (
	"context"
	"time"
)

// Standard TTL classes. Every cached value belongs to exactly one class.
const (
	// TTLStaticConfig covers laws and services.
	TTLStaticConfig = 24 * time.Hour
	// TTLSemiStatic covers legal documents.
	TTLSemiStatic = 15 * time.Minute
	// TTLUserData covers accounts and consents.
	TTLUserData = 5 * time.Minute
	// TTLSession covers session-by-token lookups.
	TTLSession = 30 * time.Minute
	// TTLShortLived covers per-IP counters.
	TTLShortLived = time.Minute
	// TTLEphemeral covers live metrics.
	TTLEphemeral = 10 * time.Second
	// TTLLookup covers username to account-id mappings.
	TTLLookup = 2 * time.Hour
)

// lockTTL bounds single-flight lock ownership so a crashed holder cannot
// block computation for longer than this.
const lockTTL = 5 * time.Second

// Cache is the namespaced KV contract. Values are opaque bytes; domain
// helpers layer JSON on top.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// InvalidatePattern removes keys matching a glob. It returns the number
	// removed; backends that cannot enumerate keys in O(matched) return 0.
	// Callers must not block a request on its completion.
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
	// GetOrCompute returns the cached value or computes it under a
	// single-flight lock, so concurrent misses invoke factory once.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, factory func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// Keys builds namespaced cache keys for one service. All keys carry the
// service prefix followed by a domain family.
type Keys struct {
	prefix string
}

// NewKeys constructs a key builder for the given service name.
func NewKeys(service string) Keys {
	return Keys{prefix: service + ":"}
}

func (k Keys) AccountByID(accountID string) string    { return k.prefix + "account:id:" + accountID }
func (k Keys) AccountByEmail(email string) string     { return k.prefix + "account:email:" + email }
func (k Keys) SessionByToken(tokenHash string) string { return k.prefix + "session:token:" + tokenHash }
func (k Keys) RevokedToken(jti string) string         { return k.prefix + "revoked:" + jti }
func (k Keys) Permissions(accountID string) string    { return k.prefix + "permissions:" + accountID }
func (k Keys) LawByCode(code string) string           { return k.prefix + "law:code:" + code }
func (k Keys) MFAChallenge(challengeID string) string { return k.prefix + "mfa:challenge:" + challengeID }
func (k Keys) ServiceEntry(serviceID string) string   { return k.prefix + "service:id:" + serviceID }
func (k Keys) ActiveSanctions(subjectID string) string {
	return k.prefix + "sanction:active:" + subjectID
}
func (k Keys) LatestDocument(docType, locale string) string {
	return k.prefix + "doc:latest:" + docType + ":" + locale
}
func (k Keys) ConsentStatus(accountID, documentID string) string {
	return k.prefix + "consent:status:" + accountID + ":" + documentID
}
func (k Keys) DSRByID(requestID string) string { return k.prefix + "dsr:id:" + requestID }

// Pattern helpers for invalidation.
func (k Keys) AccountPattern(accountID string) string { return k.prefix + "account:id:" + accountID + "*" }
func (k Keys) DocumentPattern(docType string) string  { return k.prefix + "doc:latest:" + docType + ":*" }
