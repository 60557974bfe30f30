package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"girok/pkg/ident"
)

// Appender is the producer-side contract domain services depend on. The
// postgres store participates in the caller's transaction via context.
type Appender interface {
	Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
}

// MemoryStore is the in-memory outbox used by unit tests. It ignores
// transactional context; tests assert on appended rows directly.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.events = append(s.events, Event{
		ID:            ident.NewUUIDv7(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     now,
		NextAttemptAt: now,
	})
	return nil
}

func (s *MemoryStore) FetchUnpublished(ctx context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Event
	now := time.Now()
	for _, e := range s.events {
		if e.PublishedAt == nil && e.RetryCount < MaxAttempts && !e.NextAttemptAt.After(now) {
			due = append(due, e)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (s *MemoryStore) MarkPublished(ctx context.Context, published Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == published.ID && s.events[i].PublishedAt == nil {
			now := time.Now().UTC()
			s.events[i].PublishedAt = &now
		}
	}
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, failed Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == failed.ID {
			s.events[i].RetryCount++
			s.events[i].NextAttemptAt = NextAttempt(time.Now().UTC(), s.events[i].RetryCount)
		}
	}
	return nil
}

// All returns a copy of every appended event, for test assertions.
func (s *MemoryStore) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns appended events of one type, for test assertions.
func (s *MemoryStore) ByType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
