package user

import (
	"context"
	"slices"
	"strings"
	"sync"

	"crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

// InMemory keeps staff accounts in process memory.
type InMemory struct {
	mu     sync.RWMutex
	users  map[id.UserID]*models.User
	emails map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:  make(map[id.UserID]*models.User),
		emails: make(map[string]id.UserID),
	}
}

func (s *InMemory) Create(_ context.Context, user *models.User) error {
	key := strings.ToLower(user.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[key]; taken {
		return sentinel.ErrAlreadyUsed
	}
	u := *user
	s.users[user.ID] = &u
	s.emails[key] = user.ID
	return nil
}

func (s *InMemory) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	u := *user
	s.users[user.ID] = &u
	return nil
}

func (s *InMemory) FindByID(_ context.Context, companyID id.CompanyID, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || u.CompanyID != companyID {
		return nil, sentinel.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *s.users[userID]
	return &out, nil
}

// ListByCompany returns the company's users ordered by creation time.
func (s *InMemory) ListByCompany(_ context.Context, companyID id.CompanyID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.CompanyID == companyID {
			c := *u
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// FindFirstByCompany returns the earliest created user of the company.
func (s *InMemory) FindFirstByCompany(ctx context.Context, companyID id.CompanyID) (*models.User, error) {
	users, err := s.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return users[0], nil
}
