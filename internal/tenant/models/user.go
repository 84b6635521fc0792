package models

import (
	"strings"
	"time"

	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/email"
)

type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
)

func (r Role) IsValid() bool {
	return r == RoleOwner || r == RoleManager
}

// User is a staff member of a company. Users are the candidates for lead
// ownership; the earliest created user is the last-resort owner.
type User struct {
	ID             id.UserID    `json:"id"`
	CompanyID      id.CompanyID `json:"company_id"`
	Email          string       `json:"email"`
	Name           string       `json:"name"`
	PasswordHash   string       `json:"-"`
	Role           Role         `json:"role"`
	TelegramChatID int64        `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// NewUser validates and normalizes a staff account. passwordHash must already
// be a bcrypt hash.
func NewUser(userID id.UserID, companyID id.CompanyID, rawEmail, name, passwordHash string, role Role, now time.Time) (*User, error) {
	if companyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user must belong to a company")
	}
	addr, ok := email.Normalize(rawEmail)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user email is invalid")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email.DisplayName(addr)
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user password is required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user role must be owner or manager")
	}
	return &User{
		ID:           userID,
		CompanyID:    companyID,
		Email:        addr,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
	}, nil
}
