package models

import (
	"strings"
	"time"

	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
)

// Task is a follow-up assigned to a staff user, optionally tied to a contact
// or deal.
type Task struct {
	ID          id.TaskID    `json:"id"`
	CompanyID   id.CompanyID `json:"company_id"`
	Title       string       `json:"title"`
	ContactID   id.ContactID `json:"contact_id"`
	DealID      id.DealID    `json:"deal_id"`
	AssigneeID  id.UserID    `json:"assignee_id"`
	DueAt       *time.Time   `json:"due_at,omitempty"`
	Done        bool         `json:"done"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

func NewTask(taskID id.TaskID, companyID id.CompanyID, title string, assigneeID id.UserID, now time.Time) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "task title cannot be empty")
	}
	if len(title) > 512 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "task title must be 512 characters or less")
	}
	return &Task{
		ID:         taskID,
		CompanyID:  companyID,
		Title:      title,
		AssigneeID: assigneeID,
		CreatedAt:  now,
	}, nil
}

// Complete marks the task done. Completing twice keeps the first time.
func (t *Task) Complete(now time.Time) {
	if t.Done {
		return
	}
	t.Done = true
	t.CompletedAt = &now
}

type CreateTaskRequest struct {
	Title      string       `json:"title"`
	ContactID  id.ContactID `json:"contact_id"`
	DealID     id.DealID    `json:"deal_id"`
	AssigneeID id.UserID    `json:"assignee_id"`
	DueAt      *time.Time   `json:"due_at"`
}

type ListFilter struct {
	AssigneeID id.UserID
	OpenOnly   bool
}
