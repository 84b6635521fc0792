package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"crmhub/internal/events"
	"crmhub/internal/notify/models"
	id "crmhub/pkg/domain"
)

// EventTypes are the events HandleEvent reacts to.
var EventTypes = []events.Type{events.TypeContactCreated, events.TypeDealCreated, events.TypeLeadReceived}

// HandleEvent notifies the responsible user about new contacts and deals,
// and about repeat leads from contacts that already existed.
func (s *Service) HandleEvent(ctx context.Context, e *events.Event) error {
	req, ok, err := notificationFor(e)
	if err != nil || !ok {
		return err
	}
	_, err = s.Notify(ctx, req)
	return err
}

func notificationFor(e *events.Event) (models.Request, bool, error) {
	req := models.Request{CompanyID: e.CompanyID}
	var recipient id.UserID
	switch e.Type {
	case events.TypeContactCreated:
		var p events.ContactCreated
		if err := e.Decode(&p); err != nil {
			return req, false, err
		}
		recipient = p.ResponsibleUserID
		req.Kind = models.KindContactCreated
		req.Title = "New contact: " + p.Name
		req.Body = describe(p.Source, p.Email, p.Phone)
	case events.TypeDealCreated:
		var p events.DealCreated
		if err := e.Decode(&p); err != nil {
			return req, false, err
		}
		recipient = p.ResponsibleUserID
		req.Kind = models.KindDealCreated
		req.Title = "New deal: " + p.Title
		req.Body = describe(p.Source, p.Stage)
	case events.TypeLeadReceived:
		var p events.LeadReceived
		if err := e.Decode(&p); err != nil {
			return req, false, err
		}
		// New contacts already produced a contact.created notification.
		if p.ContactCreated {
			return req, false, nil
		}
		recipient = p.ResponsibleUserID
		req.Kind = models.KindLeadReceived
		req.Title = fmt.Sprintf("Repeat lead from %s", p.Source)
		req.Body = p.Message
	default:
		return req, false, nil
	}
	if recipient.IsNil() {
		return req, false, nil
	}
	req.UserID = recipient
	return req, true, nil
}

func describe(parts ...string) string {
	return strings.Join(slices.DeleteFunc(parts, func(p string) bool { return p == "" }), ", ")
}
