// Package outbox persists domain events until the relay publishes them.
package outbox

import (
	"context"
	"slices"
	"sync"
	"time"

	"crmhub/internal/events"
	id "crmhub/pkg/domain"
)

type entry struct {
	event       events.Event
	publishedAt time.Time
}

type InMemory struct {
	mu      sync.RWMutex
	entries []*entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(_ context.Context, evts ...*events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range evts {
		c := *e
		c.Payload = slices.Clone(e.Payload)
		s.entries = append(s.entries, &entry{event: c})
	}
	return nil
}

func (s *InMemory) FetchUnpublished(_ context.Context, limit int) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*events.Event
	for _, e := range s.entries {
		if !e.publishedAt.IsZero() {
			continue
		}
		c := e.event
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) MarkPublished(_ context.Context, ids []id.EventID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if slices.Contains(ids, e.event.ID) && e.publishedAt.IsZero() {
			e.publishedAt = at
		}
	}
	return nil
}

// ListByCompany returns every stored event for a company, oldest first.
func (s *InMemory) ListByCompany(_ context.Context, companyID id.CompanyID) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*events.Event
	for _, e := range s.entries {
		if e.event.CompanyID == companyID {
			c := e.event
			out = append(out, &c)
		}
	}
	return out, nil
}
