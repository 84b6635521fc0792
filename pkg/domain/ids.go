// Package domain defines typed identifiers shared across bounded contexts.
//
// Each identifier is a distinct named UUID type so a ContactID cannot be passed
// where a DealID is expected. Parse functions are the trust boundary for ids
// arriving from URLs and request bodies.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "crmhub/pkg/domain-errors"
)

type (
	CompanyID      uuid.UUID
	UserID         uuid.UUID
	ContactID      uuid.UUID
	DealID         uuid.UUID
	PipelineID     uuid.UUID
	TaskID         uuid.UUID
	IntegrationID  uuid.UUID
	RuleID         uuid.UUID
	NotificationID uuid.UUID
	EventID        uuid.UUID
)

func parseID(raw, field string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	return u, nil
}

// unmarshalID accepts an empty string as the nil id so optional references can
// be cleared from JSON.
func unmarshalID(dst *uuid.UUID, b []byte) error {
	if len(b) == 0 {
		*dst = uuid.Nil
		return nil
	}
	return dst.UnmarshalText(b)
}

func NewCompanyID() CompanyID { return CompanyID(uuid.New()) }

func ParseCompanyID(raw string) (CompanyID, error) {
	u, err := parseID(raw, "company_id")
	return CompanyID(u), err
}

func (id CompanyID) String() string { return uuid.UUID(id).String() }
func (id CompanyID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id CompanyID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *CompanyID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}

func NewUserID() UserID { return UserID(uuid.New()) }

func ParseUserID(raw string) (UserID, error) {
	u, err := parseID(raw, "user_id")
	return UserID(u), err
}

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *UserID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}

func NewContactID() ContactID { return ContactID(uuid.New()) }

func ParseContactID(raw string) (ContactID, error) {
	u, err := parseID(raw, "contact_id")
	return ContactID(u), err
}

func (id ContactID) String() string { return uuid.UUID(id).String() }
func (id ContactID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ContactID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *ContactID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}

func NewDealID() DealID { return DealID(uuid.New()) }

func ParseDealID(raw string) (DealID, error) {
	u, err := parseID(raw, "deal_id")
	return DealID(u), err
}

func (id DealID) String() string { return uuid.UUID(id).String() }
func (id DealID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id DealID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *DealID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}

func NewPipelineID() PipelineID { return PipelineID(uuid.New()) }

func ParsePipelineID(raw string) (PipelineID, error) {
	u, err := parseID(raw, "pipeline_id")
	return PipelineID(u), err
}

func (id PipelineID) String() string { return uuid.UUID(id).String() }
func (id PipelineID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id PipelineID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *PipelineID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}

func NewTaskID() TaskID { return TaskID(uuid.New()) }

func ParseTaskID(raw string) (TaskID, error) {
	u, err := parseID(raw, "task_id")
	return TaskID(u), err
}

func (id TaskID) String() string { return uuid.UUID(id).String() }
func (id TaskID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id TaskID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *TaskID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}

func NewIntegrationID() IntegrationID { return IntegrationID(uuid.New()) }

func ParseIntegrationID(raw string) (IntegrationID, error) {
	u, err := parseID(raw, "integration_id")
	return IntegrationID(u), err
}

func (id IntegrationID) String() string { return uuid.UUID(id).String() }
func (id IntegrationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id IntegrationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *IntegrationID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}

func NewRuleID() RuleID { return RuleID(uuid.New()) }

func ParseRuleID(raw string) (RuleID, error) {
	u, err := parseID(raw, "rule_id")
	return RuleID(u), err
}

func (id RuleID) String() string { return uuid.UUID(id).String() }
func (id RuleID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id RuleID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *RuleID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}

func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }

func ParseNotificationID(raw string) (NotificationID, error) {
	u, err := parseID(raw, "notification_id")
	return NotificationID(u), err
}

func (id NotificationID) String() string { return uuid.UUID(id).String() }
func (id NotificationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id NotificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *NotificationID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}

func NewEventID() EventID { return EventID(uuid.New()) }

func ParseEventID(raw string) (EventID, error) {
	u, err := parseID(raw, "event_id")
	return EventID(u), err
}

func (id EventID) String() string { return uuid.UUID(id).String() }
func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id EventID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *EventID) UnmarshalText(b []byte) error {
	return unmarshalID((*uuid.UUID)(id), b)
}
