package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"girok/internal/cache"
	"girok/internal/consent/models"
	"girok/internal/consent/store"
	legal "girok/internal/legal/models"
	legalservice "girok/internal/legal/service"
	"girok/internal/legal/store/document"
	"girok/internal/legal/store/law"
	"girok/internal/outbox"
	"girok/internal/platform/metrics"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
	txpkg "girok/pkg/platform/tx"
)

var sharedMetrics = metrics.New()

type ConsentServiceSuite struct {
	suite.Suite
	svc     *Service
	store   *store.MemoryStore
	events  *outbox.MemoryStore
	cache   cache.Cache
	now     time.Time
	account id.AccountID
	doc     *legal.Document
}

func TestConsentServiceSuite(t *testing.T) {
	suite.Run(t, new(ConsentServiceSuite))
}

func (s *ConsentServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.store = store.NewMemory()
	s.events = outbox.NewMemory()
	s.cache = cache.NewMemory().WithClock(clock)
	s.account = id.AccountID(ident.NewUUIDv7())

	docs := document.NewMemory()
	legalSvc := legalservice.New(docs, law.NewMemory(), txpkg.Nop{},
		cache.NewMemory().WithClock(clock), cache.NewKeys("girok"), slog.Default()).WithClock(clock)
	doc, err := legalSvc.CreateVersion(context.Background(), legalservice.CreateVersionRequest{
		Type:    legal.DocMarketingEmail,
		Version: "v1",
		Locale:  "en",
		Title:   "Marketing Email",
		Body:    "body",
	})
	s.Require().NoError(err)
	s.doc = doc

	s.svc = New(s.store, legalSvc, s.events, txpkg.Nop{}, s.cache,
		cache.NewKeys("girok"), sharedMetrics, slog.Default()).WithClock(clock)
}

func (s *ConsentServiceSuite) grant(expiresAt *time.Time) *models.Consent {
	s.T().Helper()
	consent, err := s.svc.Grant(context.Background(), GrantRequest{
		AccountID:  s.account,
		DocumentID: s.doc.ID,
		ExpiresAt:  expiresAt,
	})
	s.Require().NoError(err)
	return consent
}

func (s *ConsentServiceSuite) TestGrantEmitsEventAndStatus() {
	ctx := context.Background()
	consent := s.grant(nil)
	s.Equal(models.StatusGranted, consent.Status)

	events := s.events.ByType(outbox.EventConsentGranted)
	s.Require().Len(events, 1)
	s.Equal(consent.ID.String(), events[0].AggregateID)

	status, err := s.svc.Status(ctx, s.account, s.doc.ID)
	s.Require().NoError(err)
	s.True(status.Granted)
	s.Equal(consent.ID.String(), status.ConsentID)
}

func (s *ConsentServiceSuite) TestGrantRejectsUnknownDocument() {
	_, err := s.svc.Grant(context.Background(), GrantRequest{
		AccountID:  s.account,
		DocumentID: id.DocumentID(ident.NewUUIDv7()),
	})
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func (s *ConsentServiceSuite) TestSecondGrantConflicts() {
	s.grant(nil)
	_, err := s.svc.Grant(context.Background(), GrantRequest{
		AccountID:  s.account,
		DocumentID: s.doc.ID,
	})
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *ConsentServiceSuite) TestWithdrawIsTerminal() {
	ctx := context.Background()
	consent := s.grant(nil)

	withdrawn, err := s.svc.Withdraw(ctx, consent.ID, s.account)
	s.Require().NoError(err)
	s.Equal(models.StatusWithdrawn, withdrawn.Status)
	s.Require().NotNil(withdrawn.WithdrawnAt)
	s.Require().Len(s.events.ByType(outbox.EventConsentWithdrawn), 1)

	_, err = s.svc.Withdraw(ctx, consent.ID, s.account)
	s.Equal(dErrors.CodePrecondition, dErrors.CodeOf(err))

	status, err := s.svc.Status(ctx, s.account, s.doc.ID)
	s.Require().NoError(err)
	s.False(status.Granted)

	// The withdrawn slot can be granted again.
	s.grant(nil)
}

func (s *ConsentServiceSuite) TestWithdrawRequiresOwnership() {
	consent := s.grant(nil)
	_, err := s.svc.Withdraw(context.Background(), consent.ID, id.AccountID(ident.NewUUIDv7()))
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
}

func (s *ConsentServiceSuite) TestSweepEmitsExpiringSoonWithDays() {
	expiresAt := s.now.Add(10 * 24 * time.Hour)
	consent := s.grant(&expiresAt)

	s.Require().NoError(s.svc.SweepOnce(context.Background()))

	notices := s.events.ByType(outbox.EventConsentExpiringSoon)
	s.Require().Len(notices, 1)
	var payload struct {
		ConsentID       string `json:"consent_id"`
		DaysUntilExpiry int    `json:"daysUntilExpiry"`
	}
	s.Require().NoError(json.Unmarshal(notices[0].Payload, &payload))
	s.Equal(consent.ID.String(), payload.ConsentID)
	s.Equal(10, payload.DaysUntilExpiry)

	// Still granted; the notice does not transition anything.
	status, err := s.svc.Status(context.Background(), s.account, s.doc.ID)
	s.Require().NoError(err)
	s.True(status.Granted)
}

func (s *ConsentServiceSuite) TestSweepIgnoresConsentsBeyondHorizon() {
	expiresAt := s.now.Add(45 * 24 * time.Hour)
	s.grant(&expiresAt)

	s.Require().NoError(s.svc.SweepOnce(context.Background()))
	s.Empty(s.events.ByType(outbox.EventConsentExpiringSoon))
}

func (s *ConsentServiceSuite) TestSweepExpiresDueConsents() {
	ctx := context.Background()
	expiresAt := s.now.Add(24 * time.Hour)
	consent := s.grant(&expiresAt)

	s.now = s.now.Add(48 * time.Hour)
	s.Require().NoError(s.svc.SweepOnce(ctx))

	reloaded, err := s.store.FindByID(ctx, consent.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, reloaded.Status)
	s.Require().Len(s.events.ByType(outbox.EventConsentExpired), 1)

	status, err := s.svc.Status(ctx, s.account, s.doc.ID)
	s.Require().NoError(err)
	s.False(status.Granted)
}

func (s *ConsentServiceSuite) TestStatusReadsExpiredBeforeSweep() {
	ctx := context.Background()
	expiresAt := s.now.Add(time.Hour)
	s.grant(&expiresAt)

	// Prime the cache while granted, then step past the expiry without
	// sweeping. The cached row must not read as granted.
	status, err := s.svc.Status(ctx, s.account, s.doc.ID)
	s.Require().NoError(err)
	s.True(status.Granted)

	s.now = s.now.Add(2 * time.Hour)
	status, err = s.svc.Status(ctx, s.account, s.doc.ID)
	s.Require().NoError(err)
	s.False(status.Granted)
}

func (s *ConsentServiceSuite) TestListReturnsHistory() {
	ctx := context.Background()
	consent := s.grant(nil)
	_, err := s.svc.Withdraw(ctx, consent.ID, s.account)
	s.Require().NoError(err)
	s.grant(nil)

	consents, err := s.svc.List(ctx, s.account)
	s.Require().NoError(err)
	s.Len(consents, 2)
}
