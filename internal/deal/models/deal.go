package models

import (
	"strings"
	"time"

	"crmhub/internal/events"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
)

type Status string

const (
	StatusOpen Status = "open"
	StatusWon  Status = "won"
	StatusLost Status = "lost"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusWon, StatusLost:
		return true
	}
	return false
}

// Deal is a sales opportunity moving through a pipeline.
//
// Invariants:
//   - Stage is a key of the deal's pipeline (checked by the service)
//   - ClosedAt is set exactly when Status is won or lost
//   - Amount is in minor currency units and never negative
type Deal struct {
	ID                id.DealID     `json:"id"`
	CompanyID         id.CompanyID  `json:"company_id"`
	ContactID         id.ContactID  `json:"contact_id"`
	PipelineID        id.PipelineID `json:"pipeline_id"`
	Stage             string        `json:"stage"`
	Title             string        `json:"title"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Status            Status        `json:"status"`
	Source            string        `json:"source"`
	ResponsibleUserID id.UserID     `json:"responsible_user_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	ClosedAt          *time.Time    `json:"closed_at,omitempty"`
}

func NewDeal(dealID id.DealID, companyID id.CompanyID, pipelineID id.PipelineID, stage, title string, now time.Time) (*Deal, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "deal title cannot be empty")
	}
	if len(title) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "deal title must be 256 characters or less")
	}
	if pipelineID.IsNil() || stage == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "deal needs a pipeline and stage")
	}
	return &Deal{
		ID:         dealID,
		CompanyID:  companyID,
		PipelineID: pipelineID,
		Stage:      stage,
		Title:      title,
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// SetStatus moves the deal between open and closed states.
func (d *Deal) SetStatus(status Status, now time.Time) error {
	if !status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid deal status")
	}
	d.Status = status
	if status == StatusOpen {
		d.ClosedAt = nil
	} else if d.ClosedAt == nil {
		closed := now
		d.ClosedAt = &closed
	}
	return nil
}

func (d *Deal) SetAmount(amount int64, currency string) error {
	if amount < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "amount cannot be negative")
	}
	d.Amount = amount
	d.Currency = strings.ToUpper(strings.TrimSpace(currency))
	return nil
}

func (d *Deal) IsOpen() bool { return d.Status == StatusOpen }

// SourceManual marks deals opened through the API.
const SourceManual = "manual"

// HoldsLeadSlot reports whether d is the one open deal its contact may have
// from a lead source. Manual deals never hold the slot.
func (d *Deal) HoldsLeadSlot() bool {
	return d.IsOpen() && d.Source != "" && d.Source != SourceManual
}

// CreatedEvent builds the deal.created event for d.
func (d *Deal) CreatedEvent(now time.Time) (*events.Event, error) {
	return events.New(d.CompanyID, events.TypeDealCreated, d.ID.String(), events.DealCreated{
		DealID:            d.ID,
		ContactID:         d.ContactID,
		PipelineID:        d.PipelineID,
		Stage:             d.Stage,
		Title:             d.Title,
		Source:            d.Source,
		ResponsibleUserID: d.ResponsibleUserID,
	}, now)
}
