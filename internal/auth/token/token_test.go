package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
)

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

func newTestService(rev Revocations) *Service {
	return NewService("test-secret-at-least-32-bytes-long!!", "girok", "girok-clients", time.Hour, rev)
}

func TestMintAndValidate(t *testing.T) {
	svc := newTestService(nil)
	accountID := domain.AccountID(ident.NewUUIDv7())
	sessionID := domain.SessionID(ident.NewUUIDv7())

	signed, jti, expiresAt, err := svc.Mint(accountID, sessionID, "USER", ScopeFull)
	require.NoError(t, err)
	require.NotEmpty(t, jti)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := svc.Validate(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, accountID.String(), claims.AccountID)
	assert.Equal(t, sessionID.String(), claims.SessionID)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, ScopeFull, claims.Scope)

	parsed, err := claims.ParsedAccountID()
	require.NoError(t, err)
	assert.Equal(t, accountID, parsed)
}

func TestValidateRejectsTampering(t *testing.T) {
	svc := newTestService(nil)
	other := NewService("a-completely-different-signing-key!!", "girok", "girok-clients", time.Hour, nil)

	signed, _, _, err := other.Mint(domain.AccountID(ident.NewUUIDv7()), domain.SessionID(ident.NewUUIDv7()), "USER", ScopeFull)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = svc.Validate(context.Background(), "not.a.jwt")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateChecksRevocation(t *testing.T) {
	rev := &fakeRevocations{revoked: map[string]bool{}}
	svc := newTestService(rev)

	signed, jti, _, err := svc.Mint(domain.AccountID(ident.NewUUIDv7()), domain.SessionID(ident.NewUUIDv7()), "USER", ScopeFull)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), signed)
	require.NoError(t, err)

	rev.revoked[jti] = true
	_, err = svc.Validate(context.Background(), signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateFailsClosedOnRevocationError(t *testing.T) {
	rev := &fakeRevocations{err: errors.New("redis down")}
	svc := newTestService(rev)

	signed, _, _, err := svc.Mint(domain.AccountID(ident.NewUUIDv7()), domain.SessionID(ident.NewUUIDv7()), "USER", ScopeFull)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDependencyUnavailable))
}
