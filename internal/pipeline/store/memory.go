package store

import (
	"context"
	"slices"
	"sync"

	"crmhub/internal/pipeline/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu        sync.RWMutex
	pipelines map[id.PipelineID]*models.Pipeline
}

func NewInMemory() *InMemory {
	return &InMemory{pipelines: make(map[id.PipelineID]*models.Pipeline)}
}

func clone(p *models.Pipeline) *models.Pipeline {
	c := *p
	c.Stages = slices.Clone(p.Stages)
	return &c
}

func (s *InMemory) Create(_ context.Context, p *models.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.IsDefault && s.defaultLocked(p.CompanyID) != nil {
		return sentinel.ErrAlreadyUsed
	}
	s.pipelines[p.ID] = clone(p)
	return nil
}

func (s *InMemory) Update(_ context.Context, p *models.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.pipelines[p.ID]
	if !ok || existing.CompanyID != p.CompanyID {
		return sentinel.ErrNotFound
	}
	if p.IsDefault {
		if d := s.defaultLocked(p.CompanyID); d != nil && d.ID != p.ID {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.pipelines[p.ID] = clone(p)
	return nil
}

// SetDefault moves the default flag to pipelineID.
func (s *InMemory) SetDefault(_ context.Context, companyID id.CompanyID, pipelineID id.PipelineID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.pipelines[pipelineID]
	if !ok || target.CompanyID != companyID {
		return sentinel.ErrNotFound
	}
	for _, p := range s.pipelines {
		if p.CompanyID == companyID {
			p.IsDefault = p.ID == pipelineID
		}
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (*models.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[pipelineID]
	if !ok || p.CompanyID != companyID {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

func (s *InMemory) FindDefault(_ context.Context, companyID id.CompanyID) (*models.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.defaultLocked(companyID); p != nil {
		return clone(p), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) List(_ context.Context, companyID id.CompanyID) ([]*models.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Pipeline
	for _, p := range s.pipelines {
		if p.CompanyID == companyID {
			out = append(out, clone(p))
		}
	}
	slices.SortFunc(out, func(a, b *models.Pipeline) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *InMemory) Delete(_ context.Context, companyID id.CompanyID, pipelineID id.PipelineID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[pipelineID]
	if !ok || p.CompanyID != companyID {
		return sentinel.ErrNotFound
	}
	delete(s.pipelines, pipelineID)
	return nil
}

func (s *InMemory) defaultLocked(companyID id.CompanyID) *models.Pipeline {
	for _, p := range s.pipelines {
		if p.CompanyID == companyID && p.IsDefault {
			return p
		}
	}
	return nil
}
