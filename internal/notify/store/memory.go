package store

import (
	"context"
	"slices"
	"sync"

	"crmhub/internal/notify/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu            sync.RWMutex
	notifications map[id.NotificationID]*models.Notification
}

func NewInMemory() *InMemory {
	return &InMemory{notifications: make(map[id.NotificationID]*models.Notification)}
}

func (s *InMemory) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *n
	s.notifications[n.ID] = &c
	return nil
}

func (s *InMemory) MarkRead(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.notifications[n.ID]
	if !ok || existing.CompanyID != n.CompanyID || existing.UserID != n.UserID {
		return sentinel.ErrNotFound
	}
	existing.ReadAt = n.ReadAt
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[notificationID]
	if !ok || n.UserID != userID {
		return nil, sentinel.ErrNotFound
	}
	c := *n
	return &c, nil
}

// List returns the user's notifications, newest first.
func (s *InMemory) List(_ context.Context, userID id.UserID, filter models.ListFilter) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for _, n := range s.notifications {
		if n.UserID != userID || (filter.UnreadOnly && n.IsRead()) {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
