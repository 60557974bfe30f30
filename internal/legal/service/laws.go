package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"girok/internal/cache"
	"girok/internal/legal/models"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
	"girok/pkg/platform/sentinel"
)

// LawByCode returns one law, cached for TTLStaticConfig.
func (s *Service) LawByCode(ctx context.Context, code string) (*models.Law, error) {
	raw, err := s.cache.GetOrCompute(ctx, s.keys.LawByCode(code), cache.TTLStaticConfig,
		func(ctx context.Context) ([]byte, error) {
			l, err := s.laws.FindByCode(ctx, code)
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "law not found")
			}
			if err != nil {
				return nil, err
			}
			return json.Marshal(l)
		})
	if err != nil {
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load law")
	}
	var l models.Law
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode cached law")
	}
	return &l, nil
}

// ConsentRequirementsForCountry unions the requirements of every law in
// force for the country. Deduplicated by consent type; required wins over
// optional.
func (s *Service) ConsentRequirementsForCountry(ctx context.Context, country string) (*models.ConsentRequirements, error) {
	if country == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "country is required")
	}
	laws, err := s.laws.ListActiveByCountry(ctx, country, s.now())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list laws")
	}

	required := make(map[models.DocumentType]struct{})
	optional := make(map[models.DocumentType]struct{})
	result := &models.ConsentRequirements{Country: country}
	for _, l := range laws {
		result.Laws = append(result.Laws, l.Code)
		for _, t := range l.Requirements.Required {
			required[t] = struct{}{}
		}
		for _, t := range l.Requirements.Optional {
			optional[t] = struct{}{}
		}
	}
	for t := range required {
		delete(optional, t)
	}
	result.Required = sortedTypes(required)
	result.Optional = sortedTypes(optional)
	return result, nil
}

func sortedTypes(set map[models.DocumentType]struct{}) []models.DocumentType {
	out := make([]models.DocumentType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SeedLaws inserts the system laws when absent. Safe to call on every boot;
// existing codes are left untouched.
func (s *Service) SeedLaws(ctx context.Context) error {
	now := s.now()
	for _, seed := range systemLaws(now) {
		_, err := s.laws.FindByCode(ctx, seed.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check seeded law")
		}
		if err := s.laws.Create(ctx, seed); err != nil {
			// A concurrent boot may have inserted it between check and
			// create.
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "seed law")
		}
		s.logger.InfoContext(ctx, "law seeded", "code", seed.Code, "country", *seed.Country)
	}
	return nil
}

func systemLaws(now time.Time) []*models.Law {
	country := func(c string) *string { return &c }
	marketing := []models.DocumentType{
		models.DocMarketingEmail, models.DocMarketingSMS,
		models.DocMarketingPush, models.DocMarketingPushNight,
	}
	return []*models.Law{
		{
			ID:            id.LawID(ident.NewUUIDv7()),
			Code:          "PIPA",
			Name:          "Personal Information Protection Act",
			Jurisdiction:  "KR",
			Country:       country("KR"),
			EffectiveFrom: time.Date(2011, 9, 30, 0, 0, 0, 0, time.UTC),
			Requirements: models.Requirements{
				Required: []models.DocumentType{models.DocTermsOfService, models.DocPrivacyPolicy},
				Optional: append(append([]models.DocumentType{}, marketing...), models.DocCrossBorderTransfer),
			},
			SpecialRules: models.SpecialRules{
				NightPushStartHour:  21,
				NightPushEndHour:    8,
				DataRetentionDays:   365,
				MinAge:              14,
				ParentalConsentAge:  14,
				CrossBorderExplicit: true,
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:            id.LawID(ident.NewUUIDv7()),
			Code:          "GDPR",
			Name:          "General Data Protection Regulation",
			Jurisdiction:  "EU",
			Country:       country("EU"),
			EffectiveFrom: time.Date(2018, 5, 25, 0, 0, 0, 0, time.UTC),
			Requirements: models.Requirements{
				Required: []models.DocumentType{
					models.DocTermsOfService, models.DocPrivacyPolicy, models.DocDataProcessing,
				},
				Optional: append(append([]models.DocumentType{}, marketing...), models.DocCrossBorderTransfer),
			},
			SpecialRules: models.SpecialRules{
				MinAge:              16,
				ParentalConsentAge:  16,
				CrossBorderExplicit: true,
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:            id.LawID(ident.NewUUIDv7()),
			Code:          "APPI",
			Name:          "Act on the Protection of Personal Information",
			Jurisdiction:  "JP",
			Country:       country("JP"),
			EffectiveFrom: time.Date(2017, 5, 30, 0, 0, 0, 0, time.UTC),
			Requirements: models.Requirements{
				Required: []models.DocumentType{models.DocTermsOfService, models.DocPrivacyPolicy},
				Optional: append(append([]models.DocumentType{}, marketing...), models.DocCrossBorderTransfer),
			},
			SpecialRules: models.SpecialRules{
				CrossBorderExplicit: true,
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:            id.LawID(ident.NewUUIDv7()),
			Code:          "CCPA",
			Name:          "California Consumer Privacy Act",
			Jurisdiction:  "US-CA",
			Country:       country("US-CA"),
			EffectiveFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Requirements: models.Requirements{
				Required: []models.DocumentType{models.DocTermsOfService, models.DocPrivacyPolicy},
				Optional: marketing,
			},
			SpecialRules: models.SpecialRules{
				MinAge:             13,
				ParentalConsentAge: 16,
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
