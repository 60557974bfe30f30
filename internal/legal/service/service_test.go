package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"girok/internal/cache"
	"girok/internal/legal/models"
	"girok/internal/legal/store/document"
	"girok/internal/legal/store/law"
	dErrors "girok/pkg/domain-errors"
	txpkg "girok/pkg/platform/tx"
)

type LegalServiceSuite struct {
	suite.Suite
	svc  *Service
	docs *document.MemoryStore
	laws *law.MemoryStore
	now  time.Time
}

func TestLegalServiceSuite(t *testing.T) {
	suite.Run(t, new(LegalServiceSuite))
}

func (s *LegalServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.docs = document.NewMemory()
	s.laws = law.NewMemory()
	s.svc = New(s.docs, s.laws, txpkg.Nop{}, cache.NewMemory().WithClock(clock),
		cache.NewKeys("girok"), slog.Default()).WithClock(clock)
}

func (s *LegalServiceSuite) cut(version, locale string, effective time.Time) *models.Document {
	s.T().Helper()
	doc, err := s.svc.CreateVersion(context.Background(), CreateVersionRequest{
		Type:          models.DocTermsOfService,
		Version:       version,
		Locale:        locale,
		Title:         "Terms of Service",
		Body:          "body " + version,
		EffectiveDate: effective,
	})
	s.Require().NoError(err)
	return doc
}

func (s *LegalServiceSuite) TestSeedLawsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.svc.SeedLaws(ctx))
	first, err := s.laws.FindByCode(ctx, "GDPR")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.SeedLaws(ctx))
	second, err := s.laws.FindByCode(ctx, "GDPR")
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID, "reseeding must not replace existing laws")
}

func (s *LegalServiceSuite) TestKoreanConsentRequirements() {
	ctx := context.Background()
	s.Require().NoError(s.svc.SeedLaws(ctx))

	reqs, err := s.svc.ConsentRequirementsForCountry(ctx, "KR")
	s.Require().NoError(err)
	s.Equal([]string{"PIPA"}, reqs.Laws)
	s.Contains(reqs.Required, models.DocTermsOfService)
	s.Contains(reqs.Required, models.DocPrivacyPolicy)
	for _, optional := range []models.DocumentType{
		models.DocMarketingEmail, models.DocMarketingSMS,
		models.DocMarketingPush, models.DocMarketingPushNight,
	} {
		s.Contains(reqs.Optional, optional)
	}
}

func (s *LegalServiceSuite) TestRequiredWinsOverOptional() {
	ctx := context.Background()
	country := "KR"
	s.Require().NoError(s.laws.Create(ctx, &models.Law{
		Code: "LAW_A", Jurisdiction: "KR", Country: &country,
		EffectiveFrom: s.now.AddDate(-1, 0, 0),
		Requirements: models.Requirements{
			Optional: []models.DocumentType{models.DocDataProcessing},
		},
	}))
	s.Require().NoError(s.laws.Create(ctx, &models.Law{
		Code: "LAW_B", Jurisdiction: "KR", Country: &country,
		EffectiveFrom: s.now.AddDate(-1, 0, 0),
		Requirements: models.Requirements{
			Required: []models.DocumentType{models.DocDataProcessing},
		},
	}))

	reqs, err := s.svc.ConsentRequirementsForCountry(ctx, country)
	s.Require().NoError(err)
	s.Contains(reqs.Required, models.DocDataProcessing)
	s.NotContains(reqs.Optional, models.DocDataProcessing)
}

func (s *LegalServiceSuite) TestVersionCutReplacesLatest() {
	ctx := context.Background()
	s.cut("v1", "en", s.now.AddDate(0, -1, 0))
	v2 := s.cut("v2", "en", s.now.AddDate(0, 0, -1))

	latest, err := s.svc.Latest(ctx, models.DocTermsOfService, "en", nil, nil)
	s.Require().NoError(err)
	s.Equal(v2.ID, latest.ID)

	versions, err := s.svc.ListVersions(ctx, models.DocTermsOfService, "en")
	s.Require().NoError(err)
	s.Require().Len(versions, 2)
	var activeCount int
	for _, doc := range versions {
		if doc.IsActive {
			activeCount++
			s.Equal("v2", doc.Version)
		}
	}
	s.Equal(1, activeCount, "exactly one active latest per (type, locale)")
}

func (s *LegalServiceSuite) TestVersionCutRejectsDuplicate() {
	s.cut("v1", "en", s.now.AddDate(0, -1, 0))
	_, err := s.svc.CreateVersion(context.Background(), CreateVersionRequest{
		Type:          models.DocTermsOfService,
		Version:       "v1",
		Locale:        "en",
		Title:         "Terms of Service",
		Body:          "body",
		EffectiveDate: s.now,
	})
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *LegalServiceSuite) TestFutureEffectiveDateNotResolvable() {
	ctx := context.Background()
	s.cut("v1", "en", s.now.AddDate(0, -1, 0))
	s.cut("v2", "en", s.now.AddDate(0, 1, 0))

	// The cut deactivated v1 and v2 is not yet effective; resolution is a
	// hard not-found rather than silently serving the displaced version.
	_, err := s.svc.Latest(ctx, models.DocTermsOfService, "en", nil, nil)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *LegalServiceSuite) TestLatestLocaleFallback() {
	ctx := context.Background()
	v1 := s.cut("v1", "en", s.now.AddDate(0, -1, 0))

	latest, err := s.svc.Latest(ctx, models.DocTermsOfService, "ko", nil, nil)
	s.Require().NoError(err)
	s.Equal(v1.ID, latest.ID)
}

func (s *LegalServiceSuite) TestLatestScopeFallback() {
	ctx := context.Background()
	v1 := s.cut("v1", "en", s.now.AddDate(0, -1, 0))
	country := "KR"

	latest, err := s.svc.Latest(ctx, models.DocTermsOfService, "en", &country, nil)
	s.Require().NoError(err)
	s.Equal(v1.ID, latest.ID, "country-scoped miss falls back to the unscoped document")
}

func (s *LegalServiceSuite) TestLatestNotFoundIsHardError() {
	_, err := s.svc.Latest(context.Background(), models.DocPrivacyPolicy, "en", nil, nil)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *LegalServiceSuite) TestLawByCode() {
	ctx := context.Background()
	s.Require().NoError(s.svc.SeedLaws(ctx))

	l, err := s.svc.LawByCode(ctx, "PIPA")
	s.Require().NoError(err)
	s.Equal("KR", *l.Country)
	s.Equal(14, l.SpecialRules.MinAge)
	s.True(l.SpecialRules.CrossBorderExplicit)

	// Second read comes from the cache and must carry the same content.
	cached, err := s.svc.LawByCode(ctx, "PIPA")
	s.Require().NoError(err)
	s.Equal(l.Code, cached.Code)
	s.Equal(l.Requirements, cached.Requirements)

	_, err = s.svc.LawByCode(ctx, "LGPD")
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}
