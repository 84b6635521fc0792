package company

import (
	"context"
	"strings"
	"sync"

	"crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

// InMemory is a process-local company store for development and tests.
type InMemory struct {
	mu        sync.RWMutex
	companies map[id.CompanyID]*models.Company
	names     map[string]id.CompanyID
}

func NewInMemory() *InMemory {
	return &InMemory{
		companies: make(map[id.CompanyID]*models.Company),
		names:     make(map[string]id.CompanyID),
	}
}

// CreateIfNameAvailable inserts the company unless its name is taken
// (case-insensitive).
func (s *InMemory) CreateIfNameAvailable(_ context.Context, company *models.Company) error {
	key := strings.ToLower(company.Name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.names[key]; taken {
		return sentinel.ErrAlreadyUsed
	}
	c := *company
	s.companies[company.ID] = &c
	s.names[key] = company.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, companyID id.CompanyID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[companyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *c
	return &out, nil
}
