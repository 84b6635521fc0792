package store

import (
	"context"
	"slices"
	"sync"

	"crmhub/internal/task/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.RWMutex
	tasks map[id.TaskID]*models.Task
}

func NewInMemory() *InMemory {
	return &InMemory{tasks: make(map[id.TaskID]*models.Task)}
}

func (s *InMemory) Create(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.tasks[t.ID] = &c
	return nil
}

func (s *InMemory) Update(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[t.ID]
	if !ok || existing.CompanyID != t.CompanyID {
		return sentinel.ErrNotFound
	}
	c := *t
	s.tasks[t.ID] = &c
	return nil
}

func (s *InMemory) FindByID(_ context.Context, companyID id.CompanyID, taskID id.TaskID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok || t.CompanyID != companyID {
		return nil, sentinel.ErrNotFound
	}
	c := *t
	return &c, nil
}

// List returns open tasks first, then by due date with undated tasks last.
func (s *InMemory) List(_ context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if t.CompanyID != companyID {
			continue
		}
		if !filter.AssigneeID.IsNil() && t.AssigneeID != filter.AssigneeID {
			continue
		}
		if filter.OpenOnly && t.Done {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	slices.SortFunc(out, compareTasks)
	return out, nil
}

func compareTasks(a, b *models.Task) int {
	if a.Done != b.Done {
		if a.Done {
			return 1
		}
		return -1
	}
	switch {
	case a.DueAt == nil && b.DueAt != nil:
		return 1
	case a.DueAt != nil && b.DueAt == nil:
		return -1
	case a.DueAt != nil && b.DueAt != nil:
		if n := a.DueAt.Compare(*b.DueAt); n != 0 {
			return n
		}
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}
