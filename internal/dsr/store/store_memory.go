package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"girok/internal/dsr/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
)

// MemoryStore is the in-memory DSR store used by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[id.DSRID]*models.Request
	logs     []*models.RequestLog
}

func NewMemory() *MemoryStore {
	return &MemoryStore{requests: make(map[id.DSRID]*models.Request)}
}

func (s *MemoryStore) Create(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, requestID id.DSRID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("find dsr request: %w", sentinel.ErrNotFound)
	}
	return cloneRequest(req), nil
}

func (s *MemoryStore) Update(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return fmt.Errorf("update dsr request: %w", sentinel.ErrNotFound)
	}
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*models.Request, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Request
	for _, req := range s.requests {
		if !f.AccountID.IsNil() && req.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		if f.Type != "" && req.Type != f.Type {
			continue
		}
		matched = append(matched, cloneRequest(req))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) ListOpen(_ context.Context) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if isOpen(req.Status) {
			out = append(out, cloneRequest(req))
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) ListOverdue(_ context.Context, now time.Time) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if isOpen(req.Status) && !req.EffectiveDeadline().After(now) {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveDeadline().Before(out[j].EffectiveDeadline())
	})
	return out, nil
}

func (s *MemoryStore) Statistics(_ context.Context, now time.Time) (*models.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &models.Statistics{}
	for _, req := range s.requests {
		stats.Total++
		switch req.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusCompleted:
			stats.Completed++
		}
		if isOpen(req.Status) {
			deadline := req.EffectiveDeadline()
			switch {
			case !deadline.After(now):
				stats.Overdue++
			case !deadline.After(now.Add(7 * 24 * time.Hour)):
				stats.Approaching++
			}
		}
	}
	return stats, nil
}

func (s *MemoryStore) AppendLog(_ context.Context, log *models.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *log
	s.logs = append(s.logs, &clone)
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, requestID id.DSRID) ([]*models.RequestLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.RequestLog
	for _, log := range s.logs {
		if log.RequestID == requestID {
			clone := *log
			out = append(out, &clone)
		}
	}
	return out, nil
}

func isOpen(status models.Status) bool {
	for _, open := range openStatuses {
		if status == open {
			return true
		}
	}
	return false
}

func sortByCreated(requests []*models.Request) {
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
}

func cloneRequest(req *models.Request) *models.Request {
	out := *req
	if req.ExtendedTo != nil {
		t := *req.ExtendedTo
		out.ExtendedTo = &t
	}
	if req.EscalatedAt != nil {
		t := *req.EscalatedAt
		out.EscalatedAt = &t
	}
	if req.AssigneeID != nil {
		a := *req.AssigneeID
		out.AssigneeID = &a
	}
	if req.Scope != nil {
		out.Scope = append([]byte(nil), req.Scope...)
	}
	return &out
}
