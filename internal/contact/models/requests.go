package models

import (
	"strings"

	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/email"
	"crmhub/pkg/phone"
	pkgstrings "crmhub/pkg/platform/strings"
)

type CreateContactRequest struct {
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	CompanyName       string    `json:"company_name"`
	Tags              []string  `json:"tags"`
	ResponsibleUserID id.UserID `json:"responsible_user_id"`
}

// Fields normalizes the request into contact fields. A malformed email or
// phone is a validation error here, unlike inbound leads where it is dropped.
func (r *CreateContactRequest) Fields() (Fields, error) {
	f := Fields{Name: strings.TrimSpace(r.Name), CompanyName: strings.TrimSpace(r.CompanyName)}
	var err error
	if f.Email, err = normalizeEmail(r.Email); err != nil {
		return Fields{}, err
	}
	if f.Phone, err = normalizePhone(r.Phone); err != nil {
		return Fields{}, err
	}
	if f.IsEmpty() {
		return Fields{}, dErrors.New(dErrors.CodeValidation, "name, email or phone is required")
	}
	r.Tags = pkgstrings.Tags(r.Tags)
	return f, nil
}

// UpdateContactRequest replaces the provided fields. Nil fields are left
// untouched; an empty string clears email, phone or company name.
type UpdateContactRequest struct {
	Name              *string    `json:"name"`
	Email             *string    `json:"email"`
	Phone             *string    `json:"phone"`
	CompanyName       *string    `json:"company_name"`
	Tags              *[]string  `json:"tags"`
	ResponsibleUserID *id.UserID `json:"responsible_user_id"`
}

// Apply writes the update onto c.
func (r *UpdateContactRequest) Apply(c *Contact) error {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return dErrors.New(dErrors.CodeValidation, "name cannot be empty")
		}
		c.Name = name
	}
	if r.Email != nil {
		v, err := normalizeEmail(*r.Email)
		if err != nil {
			return err
		}
		c.Email = v
	}
	if r.Phone != nil {
		v, err := normalizePhone(*r.Phone)
		if err != nil {
			return err
		}
		c.Phone = v
	}
	if r.CompanyName != nil {
		c.CompanyName = strings.TrimSpace(*r.CompanyName)
	}
	if r.Tags != nil {
		c.Tags = pkgstrings.Tags(*r.Tags)
		if c.Tags == nil {
			c.Tags = []string{}
		}
	}
	if r.ResponsibleUserID != nil {
		c.ResponsibleUserID = *r.ResponsibleUserID
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	v, ok := email.Normalize(raw)
	if !ok {
		return "", dErrors.New(dErrors.CodeValidation, "invalid email")
	}
	return v, nil
}

func normalizePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	v, ok := phone.Normalize(raw)
	if !ok {
		return "", dErrors.New(dErrors.CodeValidation, "invalid phone")
	}
	return v, nil
}

// ListFilter narrows a contact listing. Search matches name, email, phone
// or company name case-insensitively.
type ListFilter struct {
	Search string
	Tag    string
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Normalize clamps paging into the supported range.
func (f *ListFilter) Normalize() {
	f.Search = strings.TrimSpace(f.Search)
	f.Tag = strings.ToLower(strings.TrimSpace(f.Tag))
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Page is one slice of a listing plus the total match count.
type Page struct {
	Contacts []*Contact `json:"contacts"`
	Total    int        `json:"total"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}
