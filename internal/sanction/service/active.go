package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"girok/internal/cache"
	"girok/internal/sanction/models"
	"girok/internal/sanction/store"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/platform/sentinel"
)

// Get returns one sanction by ID.
func (s *Service) Get(ctx context.Context, sanctionID id.SanctionID) (*models.Sanction, error) {
	return s.findSanction(ctx, sanctionID)
}

// List returns a filtered page plus the unpaged total.
func (s *Service) List(ctx context.Context, f store.Filter) ([]*models.Sanction, int, error) {
	sanctions, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "list sanctions")
	}
	return sanctions, total, nil
}

// GetActive answers the enforcement query: sanctions whose window contains
// now and whose scope covers the given service, the union of restricted
// features across them, and whether any is a permanent ban. The per-subject
// candidate set is cached; scope filtering happens on the caller's side of
// the cache so one entry serves every service.
func (s *Service) GetActive(ctx context.Context, subjectID id.AccountID, subjectType models.SubjectType, serviceID *id.ServiceID) (*models.ActiveSet, error) {
	now := s.now()

	raw, err := s.cache.GetOrCompute(ctx, s.keys.ActiveSanctions(subjectID.String()), cache.TTLUserData,
		func(ctx context.Context) ([]byte, error) {
			active, err := s.store.FindActiveBySubject(ctx, subjectID, subjectType, now)
			if err != nil {
				return nil, err
			}
			return json.Marshal(active)
		})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load active sanctions")
	}

	var candidates []*models.Sanction
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode active sanctions")
	}
	return buildActiveSet(candidates, serviceID, now), nil
}

// buildActiveSet filters candidates by window and scope, then aggregates.
// The window re-check matters: a cached entry may outlive a sanction's end.
func buildActiveSet(candidates []*models.Sanction, serviceID *id.ServiceID, now time.Time) *models.ActiveSet {
	set := &models.ActiveSet{Sanctions: []*models.Sanction{}}
	features := make(map[string]struct{})
	for _, sanc := range candidates {
		if sanc.Status != models.StatusActive || !sanc.ActiveAt(now) || !sanc.AppliesTo(serviceID) {
			continue
		}
		set.Sanctions = append(set.Sanctions, sanc)
		for _, feature := range sanc.RestrictedFeatures {
			features[feature] = struct{}{}
		}
		if sanc.Type == models.TypePermanentBan {
			set.IsPermanentlyBanned = true
		}
	}
	set.RestrictedFeatures = make([]string, 0, len(features))
	for feature := range features {
		set.RestrictedFeatures = append(set.RestrictedFeatures, feature)
	}
	sort.Strings(set.RestrictedFeatures)
	return set
}

func (s *Service) findSanction(ctx context.Context, sanctionID id.SanctionID) (*models.Sanction, error) {
	sanc, err := s.store.FindByID(ctx, sanctionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "sanction not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load sanction")
	}
	return sanc, nil
}
