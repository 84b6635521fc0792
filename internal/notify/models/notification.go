package models

import (
	"strings"
	"time"

	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
)

type Kind string

const (
	KindContactCreated Kind = "contact_created"
	KindDealCreated    Kind = "deal_created"
	KindLeadReceived   Kind = "lead_received"
	KindAutomation     Kind = "automation"
)

// Notification is an in-app message for one staff user.
type Notification struct {
	ID        id.NotificationID `json:"id"`
	CompanyID id.CompanyID      `json:"company_id"`
	UserID    id.UserID         `json:"user_id"`
	Kind      Kind              `json:"kind"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewNotification(notificationID id.NotificationID, companyID id.CompanyID, userID id.UserID, kind Kind, title, body string, now time.Time) (*Notification, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "notification needs a recipient")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "notification title cannot be empty")
	}
	return &Notification{
		ID:        notificationID,
		CompanyID: companyID,
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      strings.TrimSpace(body),
		CreatedAt: now,
	}, nil
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// MarkRead records the first read time only.
func (n *Notification) MarkRead(now time.Time) bool {
	if n.ReadAt != nil {
		return false
	}
	n.ReadAt = &now
	return true
}

// Request asks for a notification to be stored and delivered.
type Request struct {
	CompanyID id.CompanyID
	UserID    id.UserID
	Kind      Kind
	Title     string
	Body      string
}

type ListFilter struct {
	UnreadOnly bool
	Limit      int
}
