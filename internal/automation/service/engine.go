package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crmhub/internal/automation/models"
	contactmodels "crmhub/internal/contact/models"
	"crmhub/internal/events"
	notifymodels "crmhub/internal/notify/models"
	taskmodels "crmhub/internal/task/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/requestcontext"
)

// EventTypes are the triggers a rule can name.
var EventTypes = []events.Type{events.TypeContactCreated, events.TypeDealCreated, events.TypeLeadReceived}

type Notifier interface {
	Notify(ctx context.Context, req notifymodels.Request) (*notifymodels.Notification, error)
}

type Tasks interface {
	Create(ctx context.Context, companyID id.CompanyID, req *taskmodels.CreateTaskRequest) (*taskmodels.Task, error)
}

type Tagger interface {
	AddTags(ctx context.Context, companyID id.CompanyID, contactID id.ContactID, tags ...string) (*contactmodels.Contact, error)
}

// Actions are the collaborators rule actions call into.
type Actions struct {
	Notifier Notifier
	Tasks    Tasks
	Tags     Tagger
}

var errNoContact = errors.New("event carries no contact")

// subject is what a rule acts on, extracted from the triggering event.
type subject struct {
	companyID   id.CompanyID
	contactID   id.ContactID
	dealID      id.DealID
	responsible id.UserID
	source      string
	name        string
	message     string
}

func subjectOf(e *events.Event) (subject, error) {
	sub := subject{companyID: e.CompanyID}
	switch e.Type {
	case events.TypeContactCreated:
		var p events.ContactCreated
		if err := e.Decode(&p); err != nil {
			return sub, err
		}
		sub.contactID, sub.responsible, sub.source, sub.name = p.ContactID, p.ResponsibleUserID, p.Source, p.Name
	case events.TypeDealCreated:
		var p events.DealCreated
		if err := e.Decode(&p); err != nil {
			return sub, err
		}
		sub.contactID, sub.dealID, sub.responsible, sub.source, sub.name = p.ContactID, p.DealID, p.ResponsibleUserID, p.Source, p.Title
	case events.TypeLeadReceived:
		var p events.LeadReceived
		if err := e.Decode(&p); err != nil {
			return sub, err
		}
		sub.contactID, sub.dealID, sub.responsible, sub.source, sub.message = p.ContactID, p.DealID, p.ResponsibleUserID, p.Source, p.Message
	default:
		return sub, fmt.Errorf("unsupported event type %q", e.Type)
	}
	return sub, nil
}

// HandleEvent runs every active rule of the event's company whose trigger
// and source filter match. A failing rule is logged and does not stop the
// others.
func (s *Service) HandleEvent(ctx context.Context, e *events.Event) error {
	sub, err := subjectOf(e)
	if err != nil {
		return err
	}
	rules, err := s.store.ListByTrigger(ctx, e.CompanyID, e.Type)
	if err != nil {
		return fmt.Errorf("load automation rules: %w", err)
	}
	for _, r := range rules {
		if !r.Matches(sub.source) {
			continue
		}
		err := s.run(ctx, r, sub)
		if s.metrics != nil {
			s.metrics.IncrementRun(string(r.Action), err == nil)
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "automation rule failed",
				"rule_id", r.ID,
				"action", r.Action,
				"event_id", e.ID,
				"error", err,
			)
			continue
		}
		s.logger.DebugContext(ctx, "automation rule applied", "rule_id", r.ID, "event_id", e.ID)
	}
	return nil
}

func (s *Service) run(ctx context.Context, r *models.Rule, sub subject) error {
	assignee := r.Params.UserID
	if assignee.IsNil() {
		assignee = sub.responsible
	}
	switch r.Action {
	case models.ActionNotify:
		if assignee.IsNil() {
			return errors.New("no recipient")
		}
		_, err := s.actions.Notifier.Notify(ctx, notifymodels.Request{
			CompanyID: sub.companyID,
			UserID:    assignee,
			Kind:      notifymodels.KindAutomation,
			Title:     sub.expand(r.Params.Title),
			Body:      sub.expand(r.Params.Body),
		})
		return err
	case models.ActionCreateTask:
		req := &taskmodels.CreateTaskRequest{
			Title:      sub.expand(r.Params.Title),
			ContactID:  sub.contactID,
			DealID:     sub.dealID,
			AssigneeID: assignee,
		}
		if r.Params.DueIn > 0 {
			due := requestcontext.Now(ctx).Add(time.Duration(r.Params.DueIn))
			req.DueAt = &due
		}
		_, err := s.actions.Tasks.Create(ctx, sub.companyID, req)
		return err
	case models.ActionAddTag:
		if sub.contactID.IsNil() {
			return errNoContact
		}
		_, err := s.actions.Tags.AddTags(ctx, sub.companyID, sub.contactID, r.Params.Tags...)
		return err
	}
	return fmt.Errorf("unknown action %q", r.Action)
}

// expand substitutes {name}, {source} and {message} placeholders.
func (sub subject) expand(text string) string {
	return strings.NewReplacer(
		"{name}", sub.name,
		"{source}", sub.source,
		"{message}", sub.message,
	).Replace(text)
}
