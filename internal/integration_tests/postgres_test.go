//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	authmodels "girok/internal/auth/models"
	"girok/internal/auth/store/account"
	consentmodels "girok/internal/consent/models"
	consentstore "girok/internal/consent/store"
	dsrmodels "girok/internal/dsr/models"
	dsrstore "girok/internal/dsr/store"
	legalmodels "girok/internal/legal/models"
	"girok/internal/legal/store/document"
	"girok/internal/outbox"
	id "girok/pkg/domain"
	"girok/pkg/ident"
	"girok/pkg/platform/sentinel"
	"girok/pkg/testutil/containers"
)

func newAccount(t *testing.T, ctx context.Context, store *account.PostgresStore) id.AccountID {
	t.Helper()
	now := time.Now().UTC()
	accountID := id.AccountID(ident.NewUUIDv7())
	err := store.Create(ctx, &authmodels.Account{
		ID:             accountID,
		ExternalID:     ident.NewUUIDv7().String(),
		Email:          fmt.Sprintf("%s@example.com", accountID.String()[:8]),
		Username:       "integration",
		CredentialKind: authmodels.CredentialLocal,
		Status:         authmodels.AccountActive,
		Mode:           authmodels.ModeUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	require.NoError(t, err)
	return accountID
}

func newDocument(t *testing.T, ctx context.Context, store *document.PostgresStore) id.DocumentID {
	t.Helper()
	now := time.Now().UTC()
	documentID := id.DocumentID(ident.NewUUIDv7())
	err := store.Create(ctx, &legalmodels.Document{
		ID:            documentID,
		Type:          legalmodels.DocMarketingEmail,
		Version:       "1.0.0",
		Locale:        "en",
		Title:         "Marketing Email Consent",
		Body:          "We would like to send you marketing email.",
		EffectiveDate: now.Add(-time.Hour),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
	return documentID
}

// The partial unique index admits one GRANTED row per (account, document)
// while keeping withdrawn history around.
func TestConsentGrantedUniqueness(t *testing.T) {
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)

	accountID := newAccount(t, ctx, account.NewPostgres(pg.DB))
	documentID := newDocument(t, ctx, document.NewPostgres(pg.DB))
	consents := consentstore.NewPostgres(pg.DB)

	now := time.Now().UTC()
	mk := func() *consentmodels.Consent {
		return &consentmodels.Consent{
			ID:         id.ConsentID(ident.NewUUIDv7()),
			AccountID:  accountID,
			DocumentID: documentID,
			Status:     consentmodels.StatusGranted,
			GrantedAt:  now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	first := mk()
	require.NoError(t, consents.Create(ctx, first))
	require.ErrorIs(t, consents.Create(ctx, mk()), sentinel.ErrConflict)

	withdrawnAt := now.Add(time.Minute)
	first.Status = consentmodels.StatusWithdrawn
	first.WithdrawnAt = &withdrawnAt
	require.NoError(t, consents.Update(ctx, first))

	require.NoError(t, consents.Create(ctx, mk()))

	history, err := consents.ListByAccount(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

// Statistics and the overdue scan must agree on the effective deadline:
// extended_to supersedes deadline when present.
func TestDSRDeadlineQueries(t *testing.T) {
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)

	accountID := newAccount(t, ctx, account.NewPostgres(pg.DB))
	requests := dsrstore.NewPostgres(pg.DB)

	now := time.Now().UTC()
	mk := func(status dsrmodels.Status, deadline time.Time) *dsrmodels.Request {
		req := &dsrmodels.Request{
			ID:              id.DSRID(ident.NewUUIDv7()),
			AccountID:       accountID,
			Type:            dsrmodels.TypeAccess,
			Status:          status,
			Priority:        dsrmodels.PriorityNormal,
			LegalBasis:      "GDPR",
			Deadline:        deadline,
			EscalationLevel: dsrmodels.EscalationNone,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		require.NoError(t, requests.Create(ctx, req))
		return req
	}

	mk(dsrmodels.StatusPending, now.AddDate(0, 0, 20))
	mk(dsrmodels.StatusInProgress, now.AddDate(0, 0, 3))
	overdue := mk(dsrmodels.StatusPending, now.AddDate(0, 0, -1))
	mk(dsrmodels.StatusCompleted, now.AddDate(0, 0, -10))

	stats, err := requests.Statistics(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 2, stats.Pending)
	require.Equal(t, 1, stats.InProgress)
	require.Equal(t, 1, stats.Approaching)
	require.Equal(t, 1, stats.Overdue)
	require.Equal(t, 1, stats.Completed)

	due, err := requests.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, overdue.ID, due[0].ID)

	// An extension moves the effective deadline; the row leaves the scan.
	extendedTo := now.AddDate(0, 0, 15)
	overdue.ExtendedTo = &extendedTo
	require.NoError(t, requests.Update(ctx, overdue))

	due, err = requests.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestOutboxDeliveryLifecycle(t *testing.T) {
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)
	store := outbox.NewPostgres(pg.DB)

	err := store.Append(ctx, outbox.AggregateConsent, "consent-1",
		outbox.EventConsentGranted, map[string]string{"consent_id": "consent-1"})
	require.NoError(t, err)

	events, err := store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, outbox.EventConsentGranted, events[0].EventType)

	// A failure backs the row off; it is not immediately refetched.
	require.NoError(t, store.MarkFailed(ctx, events[0]))
	events, err = store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, events)

	// Rewind the backoff and confirm publish removes it from the feed.
	_, err = pg.DB.ExecContext(ctx, `UPDATE outbox SET next_attempt_at = NOW()`)
	require.NoError(t, err)
	events, err = store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 1, events[0].RetryCount)

	require.NoError(t, store.MarkPublished(ctx, events[0]))
	events, err = store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, events)
}
