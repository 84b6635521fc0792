package store

import (
	"context"
	"slices"
	"sync"

	"crmhub/internal/automation/models"
	"crmhub/internal/events"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.RWMutex
	rules map[id.RuleID]*models.Rule
}

func NewInMemory() *InMemory {
	return &InMemory{rules: make(map[id.RuleID]*models.Rule)}
}

func (s *InMemory) Create(_ context.Context, r *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = clone(r)
	return nil
}

func (s *InMemory) List(_ context.Context, companyID id.CompanyID) ([]*models.Rule, error) {
	return s.filter(func(r *models.Rule) bool { return r.CompanyID == companyID }), nil
}

// ListByTrigger returns the active rules of a company for one event type.
func (s *InMemory) ListByTrigger(_ context.Context, companyID id.CompanyID, trigger events.Type) ([]*models.Rule, error) {
	return s.filter(func(r *models.Rule) bool {
		return r.CompanyID == companyID && r.Trigger == trigger && r.Active
	}), nil
}

func (s *InMemory) Delete(_ context.Context, companyID id.CompanyID, ruleID id.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.CompanyID != companyID {
		return sentinel.ErrNotFound
	}
	delete(s.rules, ruleID)
	return nil
}

func (s *InMemory) filter(keep func(*models.Rule) bool) []*models.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Rule
	for _, r := range s.rules {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	slices.SortFunc(out, func(a, b *models.Rule) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func clone(r *models.Rule) *models.Rule {
	c := *r
	c.Params.Tags = slices.Clone(r.Params.Tags)
	return &c
}
