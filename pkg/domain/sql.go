package domain

import (
	"database/sql/driver"

	"github.com/google/uuid"
)

// Identifiers map to UUID columns. The nil id reads and writes as NULL so
// optional references need no wrapper type.

func scanID(dst *uuid.UUID, src any) error {
	if src == nil {
		*dst = uuid.Nil
		return nil
	}
	return dst.Scan(src)
}

func idValue(u uuid.UUID) (driver.Value, error) {
	if u == uuid.Nil {
		return nil, nil
	}
	return u.String(), nil
}

func (id *CompanyID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id CompanyID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }

func (id *UserID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id UserID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }

func (id *ContactID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id ContactID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }

func (id *DealID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id DealID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }

func (id *PipelineID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id PipelineID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }

func (id *TaskID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id TaskID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }

func (id *IntegrationID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id IntegrationID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }

func (id *RuleID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id RuleID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }

func (id *NotificationID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id NotificationID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }

func (id *EventID) Scan(src any) error          { return scanID((*uuid.UUID)(id), src) }
func (id EventID) Value() (driver.Value, error) { return idValue(uuid.UUID(id)) }
