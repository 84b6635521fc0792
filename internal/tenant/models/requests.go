package models

import (
	"strings"

	dErrors "crmhub/pkg/domain-errors"
)

const minPasswordLength = 8

// CreateCompanyRequest provisions a company together with its owner account.
type CreateCompanyRequest struct {
	Name          string `json:"name"`
	OwnerEmail    string `json:"owner_email"`
	OwnerName     string `json:"owner_name"`
	OwnerPassword string `json:"owner_password"`
}

func (r *CreateCompanyRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.OwnerEmail = strings.TrimSpace(r.OwnerEmail)
	r.OwnerName = strings.TrimSpace(r.OwnerName)
}

func (r *CreateCompanyRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.OwnerEmail == "" {
		return dErrors.New(dErrors.CodeValidation, "owner_email is required")
	}
	return validatePassword(r.OwnerPassword)
}

type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

func (r *CreateUserRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	if r.Role == "" {
		r.Role = RoleManager
	}
}

func (r *CreateUserRequest) Validate() error {
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if !r.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "role must be owner or manager")
	}
	return validatePassword(r.Password)
}

// LinkTelegramRequest stores the chat that receives bot notifications.
type LinkTelegramRequest struct {
	ChatID int64 `json:"chat_id"`
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	return nil
}

// CompanyWithOwner is returned once when a company is provisioned.
type CompanyWithOwner struct {
	Company *Company `json:"company"`
	Owner   *User    `json:"owner"`
}
