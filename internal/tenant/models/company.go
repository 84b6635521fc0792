package models

import (
	"strings"
	"time"

	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
)

type CompanyStatus string

const (
	CompanyStatusActive   CompanyStatus = "active"
	CompanyStatusInactive CompanyStatus = "inactive"
)

// Company is the tenant boundary. Every CRM record is scoped to one.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - CreatedAt is immutable after construction
type Company struct {
	ID        id.CompanyID  `json:"id"`
	Name      string        `json:"name"`
	Status    CompanyStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (c *Company) IsActive() bool {
	return c.Status == CompanyStatusActive
}

func NewCompany(companyID id.CompanyID, name string, now time.Time) (*Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "company name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "company name must be 128 characters or less")
	}
	return &Company{
		ID:        companyID,
		Name:      name,
		Status:    CompanyStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
