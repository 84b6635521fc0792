package models

import (
	"strings"
	"time"

	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
)

type Kind string

const (
	KindWebhook      Kind = "webhook"
	KindWebform      Kind = "webform"
	KindTelegram     Kind = "telegram"
	KindWhatsApp     Kind = "whatsapp"
	KindYandexDirect Kind = "yandex_direct"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindWebhook, KindWebform, KindTelegram, KindWhatsApp, KindYandexDirect:
		return true
	}
	return false
}

// FormField describes one input of an embeddable web form.
type FormField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required"`
}

// Settings is the per-integration reconciliation config, stored as JSON.
type Settings struct {
	FieldMapping   map[string]string `json:"field_mapping,omitempty"`
	DefaultUserID  id.UserID         `json:"default_user_id"`
	CreateDeal     bool              `json:"create_deal"`
	PipelineID     id.PipelineID     `json:"pipeline_id"`
	Stage          string            `json:"stage,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	FormFields     []FormField       `json:"form_fields,omitempty"`
	AllowedOrigins []string          `json:"allowed_origins,omitempty"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
}

// Integration is an inbound lead channel addressed by its opaque Token.
//
// Invariants:
//   - Token is unique across tenants and never changes
//   - a webform never carries a Secret
//   - a whatsapp integration always carries a VerifyToken
type Integration struct {
	ID          id.IntegrationID `json:"id"`
	CompanyID   id.CompanyID     `json:"company_id"`
	Kind        Kind             `json:"kind"`
	Name        string           `json:"name"`
	Token       string           `json:"token"`
	Secret      string           `json:"-"`
	VerifyToken string           `json:"verify_token,omitempty"`
	Settings    Settings         `json:"settings"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func NewIntegration(integrationID id.IntegrationID, companyID id.CompanyID, kind Kind, name, token string, now time.Time) (*Integration, error) {
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown integration kind")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "integration name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "integration name must be 128 characters or less")
	}
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "integration token cannot be empty")
	}
	return &Integration{
		ID:        integrationID,
		CompanyID: companyID,
		Kind:      kind,
		Name:      name,
		Token:     token,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Source is the lead source label stamped on contacts and deals.
func (i *Integration) Source() string {
	return string(i.Kind) + ":" + i.Name
}

// Provider names the external-id namespace for senders of this integration.
// Each integration is its own namespace so ids from two bots never collide.
func (i *Integration) Provider() string {
	return string(i.Kind) + ":" + i.ID.String()
}

// HasSecret reports whether inbound deliveries must be signed.
func (i *Integration) HasSecret() bool {
	return i.Secret != ""
}

// RequiredFields lists the form fields a submission must fill.
func (i *Integration) RequiredFields() []string {
	var out []string
	for _, f := range i.Settings.FormFields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// AllowsOrigin reports whether a browser origin may submit the form. An
// empty allow list accepts everything.
func (i *Integration) AllowsOrigin(origin string) bool {
	if len(i.Settings.AllowedOrigins) == 0 {
		return true
	}
	origin = strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
	for _, allowed := range i.Settings.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (i *Integration) Clone() *Integration {
	c := *i
	s := &c.Settings
	if i.Settings.FieldMapping != nil {
		s.FieldMapping = make(map[string]string, len(i.Settings.FieldMapping))
		for k, v := range i.Settings.FieldMapping {
			s.FieldMapping[k] = v
		}
	}
	s.Tags = append([]string(nil), i.Settings.Tags...)
	s.FormFields = append([]FormField(nil), i.Settings.FormFields...)
	s.AllowedOrigins = append([]string(nil), i.Settings.AllowedOrigins...)
	return &c
}
