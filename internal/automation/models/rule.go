package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"crmhub/internal/events"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	strs "crmhub/pkg/platform/strings"
)

type Action string

const (
	ActionNotify     Action = "notify"
	ActionCreateTask Action = "create_task"
	ActionAddTag     Action = "add_tag"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionNotify, ActionCreateTask, ActionAddTag:
		return true
	}
	return false
}

// Duration marshals as a Go duration string ("24h", "90m").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "duration must be a string such as \"24h\"")
	}
	if raw == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid duration %q", raw))
	}
	*d = Duration(v)
	return nil
}

// Params configures the rule's action. UserID overrides the responsible user
// as notification recipient or task assignee.
type Params struct {
	UserID id.UserID `json:"user_id,omitzero"`
	Title  string    `json:"title,omitempty"`
	Body   string    `json:"body,omitempty"`
	DueIn  Duration  `json:"due_in,omitempty"`
	Tags   []string  `json:"tags,omitempty"`
}

// Rule runs one action when an event of Trigger occurs and its lead source
// matches SourceFilter.
type Rule struct {
	ID           id.RuleID    `json:"id"`
	CompanyID    id.CompanyID `json:"company_id"`
	Name         string       `json:"name"`
	Trigger      events.Type  `json:"trigger"`
	SourceFilter string       `json:"source_filter,omitempty"`
	Action       Action       `json:"action"`
	Params       Params       `json:"params"`
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"created_at"`
}

func NewRule(ruleID id.RuleID, companyID id.CompanyID, name string, trigger events.Type, action Action, params Params, now time.Time) (*Rule, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "rule name cannot be empty")
	}
	if !trigger.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "trigger must be contact.created, deal.created or lead.received")
	}
	if !action.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "action must be notify, create_task or add_tag")
	}
	params.Title = strings.TrimSpace(params.Title)
	params.Body = strings.TrimSpace(params.Body)
	params.Tags = strs.Tags(params.Tags)
	switch action {
	case ActionNotify, ActionCreateTask:
		if params.Title == "" {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "rule title is required for "+string(action))
		}
		if params.DueIn < 0 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "due_in cannot be negative")
		}
	case ActionAddTag:
		if len(params.Tags) == 0 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "add_tag needs at least one tag")
		}
	}
	return &Rule{
		ID:        ruleID,
		CompanyID: companyID,
		Name:      name,
		Trigger:   trigger,
		Action:    action,
		Params:    params,
		Active:    true,
		CreatedAt: now,
	}, nil
}

// Matches reports whether the rule applies to a lead source. A filter
// without a colon matches every integration of that kind ("webform"
// matches "webform:Site").
func (r *Rule) Matches(source string) bool {
	filter := r.SourceFilter
	if filter == "" {
		return true
	}
	if strings.EqualFold(filter, source) {
		return true
	}
	kind, _, found := strings.Cut(source, ":")
	return found && !strings.Contains(filter, ":") && strings.EqualFold(filter, kind)
}

type CreateRuleRequest struct {
	Name         string      `json:"name"`
	Trigger      events.Type `json:"trigger"`
	SourceFilter string      `json:"source_filter"`
	Action       Action      `json:"action"`
	Params       Params      `json:"params"`
}
