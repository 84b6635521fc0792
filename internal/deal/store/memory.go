package store

import (
	"context"
	"slices"
	"sync"

	"crmhub/internal/deal/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.RWMutex
	deals map[id.DealID]*models.Deal
}

func NewInMemory() *InMemory {
	return &InMemory{deals: make(map[id.DealID]*models.Deal)}
}

func clone(d *models.Deal) *models.Deal {
	c := *d
	if d.ClosedAt != nil {
		closed := *d.ClosedAt
		c.ClosedAt = &closed
	}
	return &c
}

func (s *InMemory) Create(_ context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slotTakenLocked(d) {
		return sentinel.ErrAlreadyUsed
	}
	s.deals[d.ID] = clone(d)
	return nil
}

func (s *InMemory) Update(_ context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.deals[d.ID]
	if !ok || existing.CompanyID != d.CompanyID {
		return sentinel.ErrNotFound
	}
	if s.slotTakenLocked(d) {
		return sentinel.ErrAlreadyUsed
	}
	s.deals[d.ID] = clone(d)
	return nil
}

// slotTakenLocked mirrors the partial unique index on open lead deals.
func (s *InMemory) slotTakenLocked(d *models.Deal) bool {
	if !d.HoldsLeadSlot() {
		return false
	}
	for _, other := range s.deals {
		if other.ID != d.ID && other.CompanyID == d.CompanyID && other.ContactID == d.ContactID &&
			other.Source == d.Source && other.HoldsLeadSlot() {
			return true
		}
	}
	return false
}

func (s *InMemory) FindByID(_ context.Context, companyID id.CompanyID, dealID id.DealID) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[dealID]
	if !ok || d.CompanyID != companyID {
		return nil, sentinel.ErrNotFound
	}
	return clone(d), nil
}

// FindOpenByContactSource returns the oldest open deal for the contact that
// came from source.
func (s *InMemory) FindOpenByContactSource(_ context.Context, companyID id.CompanyID, contactID id.ContactID, source string) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Deal
	for _, d := range s.deals {
		if d.CompanyID != companyID || d.ContactID != contactID || d.Source != source || !d.IsOpen() {
			continue
		}
		if found == nil || d.CreatedAt.Before(found.CreatedAt) {
			found = d
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(found), nil
}

// List returns deals newest first.
func (s *InMemory) List(_ context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Deal
	for _, d := range s.deals {
		if d.CompanyID != companyID {
			continue
		}
		if !filter.PipelineID.IsNil() && d.PipelineID != filter.PipelineID {
			continue
		}
		if !filter.ContactID.IsNil() && d.ContactID != filter.ContactID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, clone(d))
	}
	slices.SortFunc(out, func(a, b *models.Deal) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *InMemory) Delete(_ context.Context, companyID id.CompanyID, dealID id.DealID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[dealID]
	if !ok || d.CompanyID != companyID {
		return sentinel.ErrNotFound
	}
	delete(s.deals, dealID)
	return nil
}

func (s *InMemory) CountOpenByPipeline(_ context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (int, error) {
	return s.countOpen(func(d *models.Deal) bool {
		return d.CompanyID == companyID && d.PipelineID == pipelineID
	}), nil
}

func (s *InMemory) CountOpenByStage(_ context.Context, companyID id.CompanyID, pipelineID id.PipelineID, stage string) (int, error) {
	return s.countOpen(func(d *models.Deal) bool {
		return d.CompanyID == companyID && d.PipelineID == pipelineID && d.Stage == stage
	}), nil
}

func (s *InMemory) countOpen(match func(*models.Deal) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.deals {
		if d.IsOpen() && match(d) {
			n++
		}
	}
	return n
}
