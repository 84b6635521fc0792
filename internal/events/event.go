// Package events carries domain events from the transaction that produced
// them to in-process subscribers and, through the outbox, to Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	id "crmhub/pkg/domain"
)

type Type string

const (
	TypeLeadReceived   Type = "lead.received"
	TypeContactCreated Type = "contact.created"
	TypeDealCreated    Type = "deal.created"
)

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case TypeLeadReceived, TypeContactCreated, TypeDealCreated:
		return true
	}
	return false
}

// Event is the transport-agnostic envelope stored in the outbox.
type Event struct {
	ID          id.EventID      `json:"id"`
	CompanyID   id.CompanyID    `json:"company_id"`
	Type        Type            `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// New encodes payload into a fresh event.
func New(companyID id.CompanyID, typ Type, aggregateID string, payload any, now time.Time) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return &Event{
		ID:          id.NewEventID(),
		CompanyID:   companyID,
		Type:        typ,
		AggregateID: aggregateID,
		Payload:     raw,
		OccurredAt:  now,
	}, nil
}

// Decode unmarshals the payload into dst.
func (e *Event) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

type ContactCreated struct {
	ContactID         id.ContactID `json:"contact_id"`
	Name              string       `json:"name"`
	Email             string       `json:"email,omitempty"`
	Phone             string       `json:"phone,omitempty"`
	Source            string       `json:"source,omitempty"`
	ResponsibleUserID id.UserID    `json:"responsible_user_id"`
}

type DealCreated struct {
	DealID            id.DealID     `json:"deal_id"`
	ContactID         id.ContactID  `json:"contact_id"`
	PipelineID        id.PipelineID `json:"pipeline_id"`
	Stage             string        `json:"stage"`
	Title             string        `json:"title"`
	Source            string        `json:"source,omitempty"`
	ResponsibleUserID id.UserID     `json:"responsible_user_id"`
}

type LeadReceived struct {
	IntegrationID     id.IntegrationID  `json:"integration_id"`
	Kind              string            `json:"kind"`
	Source            string            `json:"source"`
	ContactID         id.ContactID      `json:"contact_id"`
	DealID            id.DealID         `json:"deal_id"`
	ContactCreated    bool              `json:"contact_created"`
	DealCreated       bool              `json:"deal_created"`
	ResponsibleUserID id.UserID         `json:"responsible_user_id"`
	Message           string            `json:"message,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}
