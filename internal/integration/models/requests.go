package models

import (
	"net/url"
	"strings"

	"crmhub/internal/leads/mapping"
	dErrors "crmhub/pkg/domain-errors"
	strs "crmhub/pkg/platform/strings"
)

// CreateIntegrationRequest registers an inbound channel. Secret is only
// honoured for webhooks (empty string disables signing) and whatsapp (the
// Meta app secret, required).
type CreateIntegrationRequest struct {
	Kind     Kind     `json:"kind"`
	Name     string   `json:"name"`
	Secret   *string  `json:"secret,omitempty"`
	Settings Settings `json:"settings"`
}

type UpdateIntegrationRequest struct {
	Name     *string   `json:"name,omitempty"`
	Settings *Settings `json:"settings,omitempty"`
	Active   *bool     `json:"active,omitempty"`
}

// WithSecret is returned once, on create and rotate.
type WithSecret struct {
	*Integration
	Secret string `json:"secret,omitempty"`
}

// Normalize trims and canonicalizes the settings in place and rejects
// unusable values.
func (s *Settings) Normalize() error {
	if len(s.FieldMapping) > 0 {
		m := make(map[string]string, len(s.FieldMapping))
		for field, path := range s.FieldMapping {
			field = strings.ToLower(strings.TrimSpace(field))
			path = strings.TrimSpace(path)
			if !mapping.Field(field).Valid() {
				return dErrors.New(dErrors.CodeValidation, "unknown mapped field "+field)
			}
			if path == "" {
				return dErrors.New(dErrors.CodeValidation, "mapping for "+field+" has an empty path")
			}
			m[field] = path
		}
		s.FieldMapping = m
	}
	s.Stage = strings.ToLower(strings.TrimSpace(s.Stage))
	s.Tags = strs.Tags(s.Tags)
	s.AllowedOrigins = strs.Origins(s.AllowedOrigins)

	seen := make(map[string]struct{}, len(s.FormFields))
	for i := range s.FormFields {
		f := &s.FormFields[i]
		f.Name = strings.TrimSpace(f.Name)
		f.Label = strings.TrimSpace(f.Label)
		if f.Name == "" {
			return dErrors.New(dErrors.CodeValidation, "form field name cannot be empty")
		}
		if _, dup := seen[f.Name]; dup {
			return dErrors.New(dErrors.CodeValidation, "duplicate form field "+f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Label == "" {
			f.Label = f.Name
		}
		if f.Type == "" {
			f.Type = "text"
		}
	}

	s.RedirectURL = strings.TrimSpace(s.RedirectURL)
	if s.RedirectURL != "" {
		u, err := url.Parse(s.RedirectURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return dErrors.New(dErrors.CodeValidation, "redirect_url must be an absolute http(s) URL")
		}
	}
	return nil
}
