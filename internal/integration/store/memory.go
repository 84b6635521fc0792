package store

import (
	"context"
	"slices"
	"sync"

	"crmhub/internal/integration/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu           sync.RWMutex
	integrations map[id.IntegrationID]*models.Integration
	byToken      map[string]id.IntegrationID
}

func NewInMemory() *InMemory {
	return &InMemory{
		integrations: make(map[id.IntegrationID]*models.Integration),
		byToken:      make(map[string]id.IntegrationID),
	}
}

func (s *InMemory) Create(_ context.Context, i *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byToken[i.Token]; taken {
		return sentinel.ErrAlreadyUsed
	}
	s.integrations[i.ID] = i.Clone()
	s.byToken[i.Token] = i.ID
	return nil
}

func (s *InMemory) Update(_ context.Context, i *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.integrations[i.ID]
	if !ok || existing.CompanyID != i.CompanyID {
		return sentinel.ErrNotFound
	}
	stored := i.Clone()
	stored.Token = existing.Token
	s.integrations[i.ID] = stored
	return nil
}

func (s *InMemory) FindByID(_ context.Context, companyID id.CompanyID, integrationID id.IntegrationID) (*models.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.integrations[integrationID]
	if !ok || i.CompanyID != companyID {
		return nil, sentinel.ErrNotFound
	}
	return i.Clone(), nil
}

// FindByToken resolves an inbound token across all tenants.
func (s *InMemory) FindByToken(_ context.Context, token string) (*models.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	integrationID, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.integrations[integrationID].Clone(), nil
}

func (s *InMemory) List(_ context.Context, companyID id.CompanyID) ([]*models.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Integration
	for _, i := range s.integrations {
		if i.CompanyID == companyID {
			out = append(out, i.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Integration) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *InMemory) Delete(_ context.Context, companyID id.CompanyID, integrationID id.IntegrationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.integrations[integrationID]
	if !ok || i.CompanyID != companyID {
		return sentinel.ErrNotFound
	}
	delete(s.byToken, i.Token)
	delete(s.integrations, integrationID)
	return nil
}
