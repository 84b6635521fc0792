package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/internal/events"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
)

func TestNewRule(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	newRule := func(trigger events.Type, action Action, params Params) (*Rule, error) {
		return NewRule(id.NewRuleID(), id.NewCompanyID(), "rule", trigger, action, params, now)
	}

	r, err := newRule(events.TypeContactCreated, ActionAddTag, Params{Tags: []string{" VIP ", "vip", "lead"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"vip", "lead"}, r.Params.Tags)
	assert.True(t, r.Active)

	tests := []struct {
		name    string
		trigger events.Type
		action  Action
		params  Params
	}{
		{"unknown trigger", "task.created", ActionNotify, Params{Title: "x"}},
		{"unknown action", events.TypeDealCreated, "call", Params{Title: "x"}},
		{"notify without title", events.TypeDealCreated, ActionNotify, Params{}},
		{"task with negative due", events.TypeDealCreated, ActionCreateTask, Params{Title: "x", DueIn: Duration(-time.Hour)}},
		{"tag without tags", events.TypeDealCreated, ActionAddTag, Params{Tags: []string{" "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRule(tt.trigger, tt.action, tt.params)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestRuleMatches(t *testing.T) {
	r := &Rule{}
	assert.True(t, r.Matches("webform:Site"))

	r.SourceFilter = "webform"
	assert.True(t, r.Matches("WebForm:Site"))
	assert.False(t, r.Matches("telegram:Bot"))
	assert.False(t, r.Matches(""))

	r.SourceFilter = "webform:Landing"
	assert.True(t, r.Matches("webform:landing"))
	assert.False(t, r.Matches("webform:Site"))
}

func TestDurationJSON(t *testing.T) {
	var p Params
	require.NoError(t, json.Unmarshal([]byte(`{"due_in": "90m"}`), &p))
	assert.Equal(t, Duration(90*time.Minute), p.DueIn)

	raw, err := json.Marshal(Params{DueIn: Duration(2 * time.Hour)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"due_in": "2h0m0s"}`, string(raw))

	assert.Error(t, json.Unmarshal([]byte(`{"due_in": "soon"}`), &p))
}
