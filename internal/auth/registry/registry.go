// Package registry resolves X-Service-Id headers against the table of
// registered first-party services. Entries change only at deploy time, so
// positive answers are cached under the static-config TTL.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"girok/internal/cache"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/platform/sentinel"
)

// Service is one registered caller of the control plane.
type Service struct {
	ID        id.ServiceID `json:"id"`
	Name      string       `json:"name"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
}

// Store loads service entries.
type Store interface {
	FindService(ctx context.Context, serviceID id.ServiceID) (*Service, error)
}

// Registry validates service IDs with a cache in front of the store.
type Registry struct {
	store Store
	cache cache.Cache
	keys  cache.Keys
}

func New(store Store, c cache.Cache, keys cache.Keys) *Registry {
	return &Registry{store: store, cache: c, keys: keys}
}

// ValidateService reports nil when the service exists and is active.
// Inactive and unknown services are indistinguishable to callers.
func (r *Registry) ValidateService(ctx context.Context, serviceID id.ServiceID) error {
	payload, err := r.cache.GetOrCompute(ctx, r.keys.ServiceEntry(serviceID.String()), cache.TTLStaticConfig,
		func(ctx context.Context) ([]byte, error) {
			svc, err := r.store.FindService(ctx, serviceID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(svc)
		})
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeUnauthorized, "unknown service")
	}
	if err != nil {
		return fmt.Errorf("validate service: %w", err)
	}
	var svc Service
	if err := json.Unmarshal(payload, &svc); err != nil {
		return fmt.Errorf("decode service entry: %w", err)
	}
	if !svc.Active {
		return dErrors.New(dErrors.CodeUnauthorized, "unknown service")
	}
	return nil
}
