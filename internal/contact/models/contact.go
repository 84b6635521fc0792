package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	"crmhub/internal/events"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/email"
	pkgstrings "crmhub/pkg/platform/strings"
)

// Contact is a person a company sells to.
//
// Invariants:
//   - Email and phone are stored normalized; each is unique per company when set
//   - ExternalIDs maps a provider to that provider's id for the person
//   - Name is never empty
type Contact struct {
	ID                id.ContactID      `json:"id"`
	CompanyID         id.CompanyID      `json:"company_id"`
	Name              string            `json:"name"`
	Email             string            `json:"email"`
	Phone             string            `json:"phone"`
	CompanyName       string            `json:"company_name"`
	Source            string            `json:"source"`
	ResponsibleUserID id.UserID         `json:"responsible_user_id"`
	Tags              []string          `json:"tags"`
	ExternalIDs       map[string]string `json:"external_ids"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Fields are the person details a contact can be created or filled from.
type Fields struct {
	Name        string
	Email       string
	Phone       string
	CompanyName string
}

// IsEmpty reports whether none of the identifying fields are set.
func (f Fields) IsEmpty() bool {
	return f.Email == "" && f.Phone == "" && strings.TrimSpace(f.Name) == ""
}

func NewContact(contactID id.ContactID, companyID id.CompanyID, f Fields, now time.Time) (*Contact, error) {
	if f.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contact needs a name, email or phone")
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = fallbackName(f)
	}
	if len(name) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contact name must be 256 characters or less")
	}
	return &Contact{
		ID:          contactID,
		CompanyID:   companyID,
		Name:        name,
		Email:       f.Email,
		Phone:       f.Phone,
		CompanyName: strings.TrimSpace(f.CompanyName),
		Tags:        []string{},
		ExternalIDs: map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func fallbackName(f Fields) string {
	if f.Email != "" {
		if n := email.DisplayName(f.Email); n != "" {
			return n
		}
		return f.Email
	}
	return f.Phone
}

// FillEmpty copies fields that are blank on the contact. Values already on
// the contact are never overwritten; a name that merely repeats the phone or
// email counts as blank. Reports whether anything changed.
func (c *Contact) FillEmpty(f Fields) bool {
	derived := c.nameIsDerived()
	changed := false
	fill := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	fill(&c.Email, f.Email)
	fill(&c.Phone, f.Phone)
	fill(&c.CompanyName, f.CompanyName)
	if n := strings.TrimSpace(f.Name); n != "" && n != c.Name && (c.Name == "" || derived) {
		c.Name = n
		changed = true
	}
	return changed
}

// nameIsDerived reports whether the current name is just the contact's
// phone or email standing in for a real name.
func (c *Contact) nameIsDerived() bool {
	return (c.Phone != "" && c.Name == c.Phone) || (c.Email != "" && c.Name == c.Email)
}

// AttachExternalID records the provider's id for this contact. An existing
// mapping for the provider is kept.
func (c *Contact) AttachExternalID(provider, externalID string) bool {
	provider = strings.ToLower(strings.TrimSpace(provider))
	externalID = strings.TrimSpace(externalID)
	if provider == "" || externalID == "" {
		return false
	}
	if c.ExternalIDs == nil {
		c.ExternalIDs = map[string]string{}
	}
	if _, ok := c.ExternalIDs[provider]; ok {
		return false
	}
	c.ExternalIDs[provider] = externalID
	return true
}

// AddTags merges tags into the contact, keeping them normalized and unique.
func (c *Contact) AddTags(tags ...string) bool {
	merged := pkgstrings.Tags(append(slices.Clone(c.Tags), tags...))
	if slices.Equal(merged, c.Tags) {
		return false
	}
	c.Tags = merged
	return true
}

// AssignIfUnowned sets the responsible user only when none is set.
func (c *Contact) AssignIfUnowned(userID id.UserID) bool {
	if !c.ResponsibleUserID.IsNil() || userID.IsNil() {
		return false
	}
	c.ResponsibleUserID = userID
	return true
}

func (c *Contact) Clone() *Contact {
	cp := *c
	cp.Tags = slices.Clone(c.Tags)
	cp.ExternalIDs = maps.Clone(c.ExternalIDs)
	return &cp
}

// CreatedEvent builds the contact.created event for c.
func (c *Contact) CreatedEvent(now time.Time) (*events.Event, error) {
	return events.New(c.CompanyID, events.TypeContactCreated, c.ID.String(), events.ContactCreated{
		ContactID:         c.ID,
		Name:              c.Name,
		Email:             c.Email,
		Phone:             c.Phone,
		Source:            c.Source,
		ResponsibleUserID: c.ResponsibleUserID,
	}, now)
}
