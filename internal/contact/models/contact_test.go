package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/internal/events"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
)

var now = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func TestNewContact(t *testing.T) {
	t.Run("name derived from email", func(t *testing.T) {
		c, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{Email: "jane.doe@example.com"}, now)
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", c.Name)
		assert.NotNil(t, c.Tags)
		assert.NotNil(t, c.ExternalIDs)
	})
	t.Run("name derived from phone", func(t *testing.T) {
		c, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{Phone: "+79123456789"}, now)
		require.NoError(t, err)
		assert.Equal(t, "+79123456789", c.Name)
	})
	t.Run("nothing to identify", func(t *testing.T) {
		_, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{CompanyName: "Acme"}, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestFillEmptyNeverOverwrites(t *testing.T) {
	c, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{Name: "Jane", Email: "jane@example.com"}, now)
	require.NoError(t, err)

	changed := c.FillEmpty(Fields{Name: "Other", Email: "other@example.com", Phone: "+79123456789", CompanyName: "Acme"})

	assert.True(t, changed)
	assert.Equal(t, "Jane", c.Name)
	assert.Equal(t, "jane@example.com", c.Email)
	assert.Equal(t, "+79123456789", c.Phone)
	assert.Equal(t, "Acme", c.CompanyName)
	assert.False(t, c.FillEmpty(Fields{Phone: "+70000000000"}))
}

func TestFillEmptyReplacesDerivedName(t *testing.T) {
	c, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{Phone: "+79123456789"}, now)
	require.NoError(t, err)

	assert.True(t, c.FillEmpty(Fields{Name: "Ivan Petrov"}))
	assert.Equal(t, "Ivan Petrov", c.Name)
}

func TestAttachExternalIDKeepsFirstMapping(t *testing.T) {
	c, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{Name: "Jane"}, now)
	require.NoError(t, err)

	assert.True(t, c.AttachExternalID("Telegram", "42"))
	assert.False(t, c.AttachExternalID("telegram", "43"))
	assert.False(t, c.AttachExternalID("", "1"))
	assert.Equal(t, map[string]string{"telegram": "42"}, c.ExternalIDs)
}

func TestAddTags(t *testing.T) {
	c, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{Name: "Jane"}, now)
	require.NoError(t, err)

	assert.True(t, c.AddTags("VIP", " lead "))
	assert.False(t, c.AddTags("vip"))
	assert.Equal(t, []string{"vip", "lead"}, c.Tags)
}

func TestAssignIfUnowned(t *testing.T) {
	c, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{Name: "Jane"}, now)
	require.NoError(t, err)
	first, second := id.NewUserID(), id.NewUserID()

	assert.True(t, c.AssignIfUnowned(first))
	assert.False(t, c.AssignIfUnowned(second))
	assert.Equal(t, first, c.ResponsibleUserID)
}

func TestCreatedEvent(t *testing.T) {
	c, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{Name: "Jane"}, now)
	require.NoError(t, err)
	c.Source = "webhook:site"

	e, err := c.CreatedEvent(now)
	require.NoError(t, err)
	assert.Equal(t, events.TypeContactCreated, e.Type)

	var payload events.ContactCreated
	require.NoError(t, e.Decode(&payload))
	assert.Equal(t, c.ID, payload.ContactID)
	assert.Equal(t, "webhook:site", payload.Source)
}

func TestCreateRequestFields(t *testing.T) {
	req := CreateContactRequest{Email: " Jane@Example.com ", Phone: "8 912 345 67 89", Tags: []string{"A", "a"}}
	f, err := req.Fields()
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", f.Email)
	assert.Equal(t, "+79123456789", f.Phone)
	assert.Equal(t, []string{"a"}, req.Tags)

	bad := CreateContactRequest{Email: "nope"}
	_, err = bad.Fields()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestUpdateRequestApply(t *testing.T) {
	c, err := NewContact(id.NewContactID(), id.NewCompanyID(), Fields{Name: "Jane", Email: "jane@example.com"}, now)
	require.NoError(t, err)
	empty := ""
	name := "Janet"
	req := UpdateContactRequest{Name: &name, Email: &empty}

	require.NoError(t, req.Apply(c))
	assert.Equal(t, "Janet", c.Name)
	assert.Empty(t, c.Email)

	blank := " "
	assert.Error(t, (&UpdateContactRequest{Name: &blank}).Apply(c))
}

func TestListFilterNormalize(t *testing.T) {
	f := ListFilter{Limit: 1000, Offset: -3, Tag: " VIP "}
	f.Normalize()
	assert.Equal(t, MaxListLimit, f.Limit)
	assert.Zero(t, f.Offset)
	assert.Equal(t, "vip", f.Tag)
}
