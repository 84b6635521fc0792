package models

import (
	"strings"

	id "crmhub/pkg/domain"
)

type CreateDealRequest struct {
	Title             string        `json:"title"`
	ContactID         id.ContactID  `json:"contact_id"`
	PipelineID        id.PipelineID `json:"pipeline_id"`
	Stage             string        `json:"stage"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	ResponsibleUserID id.UserID     `json:"responsible_user_id"`
}

func (r *CreateDealRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Stage = strings.ToLower(strings.TrimSpace(r.Stage))
}

type UpdateDealRequest struct {
	Title             *string    `json:"title"`
	Amount            *int64     `json:"amount"`
	Currency          *string    `json:"currency"`
	Stage             *string    `json:"stage"`
	Status            *Status    `json:"status"`
	ResponsibleUserID *id.UserID `json:"responsible_user_id"`
}

type ListFilter struct {
	PipelineID id.PipelineID
	ContactID  id.ContactID
	Status     Status
}
