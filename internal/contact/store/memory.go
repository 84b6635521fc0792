package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"crmhub/internal/contact/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	contacts map[id.ContactID]*models.Contact
}

func NewInMemory() *InMemory {
	return &InMemory{contacts: make(map[id.ContactID]*models.Contact)}
}

func (s *InMemory) Create(_ context.Context, c *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictLocked(c) {
		return sentinel.ErrAlreadyUsed
	}
	s.contacts[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) Update(_ context.Context, c *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.contacts[c.ID]
	if !ok || existing.CompanyID != c.CompanyID {
		return sentinel.ErrNotFound
	}
	if s.conflictLocked(c) {
		return sentinel.ErrAlreadyUsed
	}
	s.contacts[c.ID] = c.Clone()
	return nil
}

// conflictLocked mirrors the partial unique indexes on email and phone and
// the contact_external_ids primary key.
func (s *InMemory) conflictLocked(c *models.Contact) bool {
	for _, other := range s.contacts {
		if other.ID == c.ID || other.CompanyID != c.CompanyID {
			continue
		}
		if c.Email != "" && other.Email == c.Email {
			return true
		}
		if c.Phone != "" && other.Phone == c.Phone {
			return true
		}
		for provider, externalID := range c.ExternalIDs {
			if v, ok := other.ExternalIDs[provider]; ok && v == externalID {
				return true
			}
		}
	}
	return false
}

func (s *InMemory) FindByID(_ context.Context, companyID id.CompanyID, contactID id.ContactID) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[contactID]
	if !ok || c.CompanyID != companyID {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemory) FindByEmail(_ context.Context, companyID id.CompanyID, email string) (*models.Contact, error) {
	return s.findFirst(companyID, func(c *models.Contact) bool { return email != "" && c.Email == email })
}

func (s *InMemory) FindByPhone(_ context.Context, companyID id.CompanyID, phone string) (*models.Contact, error) {
	return s.findFirst(companyID, func(c *models.Contact) bool { return phone != "" && c.Phone == phone })
}

func (s *InMemory) FindByExternalID(_ context.Context, companyID id.CompanyID, provider, externalID string) (*models.Contact, error) {
	return s.findFirst(companyID, func(c *models.Contact) bool {
		v, ok := c.ExternalIDs[provider]
		return ok && v == externalID
	})
}

func (s *InMemory) findFirst(companyID id.CompanyID, match func(*models.Contact) bool) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Contact
	for _, c := range s.contacts {
		if c.CompanyID != companyID || !match(c) {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = c
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return found.Clone(), nil
}

// List returns contacts newest first.
func (s *InMemory) List(_ context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Contact, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(filter.Search)
	var matched []*models.Contact
	for _, c := range s.contacts {
		if c.CompanyID != companyID {
			continue
		}
		if filter.Tag != "" && !slices.Contains(c.Tags, filter.Tag) {
			continue
		}
		if search != "" && !matchesSearch(c, search) {
			continue
		}
		matched = append(matched, c)
	}
	slices.SortFunc(matched, func(a, b *models.Contact) int {
		if n := b.CreatedAt.Compare(a.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	page := make([]*models.Contact, 0, end-start)
	for _, c := range matched[start:end] {
		page = append(page, c.Clone())
	}
	return page, total, nil
}

func matchesSearch(c *models.Contact, search string) bool {
	for _, field := range []string{c.Name, c.Email, c.Phone, c.CompanyName} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func (s *InMemory) Delete(_ context.Context, companyID id.CompanyID, contactID id.ContactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok || c.CompanyID != companyID {
		return sentinel.ErrNotFound
	}
	delete(s.contacts, contactID)
	return nil
}
