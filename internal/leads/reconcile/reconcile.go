// Package reconcile turns an inbound lead into a contact and, when the
// integration asks for it, an open deal.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contactmetrics "crmhub/internal/contact/metrics"
	contactmodels "crmhub/internal/contact/models"
	dealmetrics "crmhub/internal/deal/metrics"
	dealmodels "crmhub/internal/deal/models"
	"crmhub/internal/events"
	integrationmodels "crmhub/internal/integration/models"
	"crmhub/internal/leads/mapping"
	leadmetrics "crmhub/internal/leads/metrics"
	pipelinemodels "crmhub/internal/pipeline/models"
	tenantmodels "crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/platform/tx"
	"crmhub/pkg/requestcontext"
)

type Contacts interface {
	Create(ctx context.Context, c *contactmodels.Contact) error
	Update(ctx context.Context, c *contactmodels.Contact) error
	FindByEmail(ctx context.Context, companyID id.CompanyID, email string) (*contactmodels.Contact, error)
	FindByPhone(ctx context.Context, companyID id.CompanyID, phone string) (*contactmodels.Contact, error)
	FindByExternalID(ctx context.Context, companyID id.CompanyID, provider, externalID string) (*contactmodels.Contact, error)
}

type Deals interface {
	Create(ctx context.Context, d *dealmodels.Deal) error
	FindOpenByContactSource(ctx context.Context, companyID id.CompanyID, contactID id.ContactID, source string) (*dealmodels.Deal, error)
}

type Users interface {
	FindByID(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*tenantmodels.User, error)
	FindFirstByCompany(ctx context.Context, companyID id.CompanyID) (*tenantmodels.User, error)
}

type Pipelines interface {
	Resolve(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID, stage string) (*pipelinemodels.Pipeline, string, bool, error)
}

type EventRecorder interface {
	Record(ctx context.Context, evts ...*events.Event) error
	Dispatch(ctx context.Context, evts ...*events.Event)
}

// Request is one mapped lead delivered through an integration.
type Request struct {
	Integration *integrationmodels.Integration
	Lead        mapping.Lead
	// ExternalID is the sender's id at the provider, e.g. a Telegram user id.
	// It defaults to the mapped external_id field.
	ExternalID string
	// Metadata travels on the lead.received event, e.g. the submitter's
	// browser for web forms.
	Metadata map[string]string
}

type Result struct {
	Contact        *contactmodels.Contact `json:"contact"`
	Deal           *dealmodels.Deal       `json:"deal,omitempty"`
	ContactCreated bool                   `json:"contact_created"`
	DealCreated    bool                   `json:"deal_created"`
}

// errContactRace marks a lost insert race; the whole reconciliation is
// retried once so the winner's row is found by lookup.
var errContactRace = errors.New("contact created concurrently")

var tracer = otel.Tracer("crmhub/internal/leads/reconcile")

type Service struct {
	contacts       Contacts
	deals          Deals
	users          Users
	pipelines      Pipelines
	events         EventRecorder
	tx             tx.Runner
	logger         *slog.Logger
	metrics        *leadmetrics.Metrics
	contactMetrics *contactmetrics.Metrics
	dealMetrics    *dealmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithEvents(recorder EventRecorder) Option {
	return func(s *Service) {
		s.events = recorder
	}
}

func WithMetrics(m *leadmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEntityMetrics counts contacts and deals opened by leads alongside the
// ones opened through the API.
func WithEntityMetrics(contacts *contactmetrics.Metrics, deals *dealmetrics.Metrics) Option {
	return func(s *Service) {
		s.contactMetrics = contacts
		s.dealMetrics = deals
	}
}

func New(contacts Contacts, deals Deals, users Users, pipelines Pipelines, opts ...Option) *Service {
	s := &Service{contacts: contacts, deals: deals, users: users, pipelines: pipelines}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewMemoryRunner()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Reconcile upserts the contact behind a lead and opens a deal when the
// integration is configured to. Everything is written in one transaction
// and the resulting events are dispatched after commit.
func (s *Service) Reconcile(ctx context.Context, req Request) (*Result, error) {
	i := req.Integration
	if i == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "reconcile without integration")
	}
	ctx, span := tracer.Start(ctx, "leads.reconcile", trace.WithAttributes(
		attribute.String("crmhub.company_id", i.CompanyID.String()),
		attribute.String("crmhub.integration_id", i.ID.String()),
		attribute.String("crmhub.integration_kind", string(i.Kind)),
	))
	defer span.End()
	start := time.Now()
	if req.ExternalID == "" {
		req.ExternalID = req.Lead.ExternalID
	}

	if req.Lead.Email == "" && req.Lead.Phone == "" && req.ExternalID == "" {
		err := dErrors.New(dErrors.CodeValidation, "lead needs an email, phone or external id")
		span.SetStatus(codes.Error, "no identifier")
		return nil, err
	}

	res, evts, err := s.reconcileOnce(ctx, req)
	if errors.Is(err, errContactRace) {
		span.AddEvent("retry after contact race")
		res, evts, err = s.reconcileOnce(ctx, req)
	}
	if errors.Is(err, errContactRace) {
		err = dErrors.New(dErrors.CodeConflict, "contact was modified concurrently")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	if s.events != nil {
		s.events.Dispatch(ctx, evts...)
	}
	s.observe(i, res, start)
	span.SetAttributes(
		attribute.String("crmhub.contact_id", res.Contact.ID.String()),
		attribute.Bool("crmhub.contact_created", res.ContactCreated),
		attribute.Bool("crmhub.deal_created", res.DealCreated),
	)
	s.logger.InfoContext(ctx, "lead reconciled",
		"company_id", i.CompanyID,
		"integration_id", i.ID,
		"contact_id", res.Contact.ID,
		"contact_created", res.ContactCreated,
		"deal_created", res.DealCreated,
		"request_id", requestcontext.RequestID(ctx),
	)
	return res, nil
}

func (s *Service) observe(i *integrationmodels.Integration, res *Result, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveReconciled(string(i.Kind), res.ContactCreated, start)
	}
	if res.ContactCreated && s.contactMetrics != nil {
		s.contactMetrics.IncrementCreated("lead")
	}
	if res.DealCreated && s.dealMetrics != nil {
		s.dealMetrics.IncrementCreated("lead")
	}
}

func (s *Service) reconcileOnce(ctx context.Context, req Request) (*Result, []*events.Event, error) {
	var (
		res  *Result
		evts []*events.Event
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		res, err = s.upsertContact(txCtx, req)
		if err != nil {
			return err
		}
		if err := s.openDeal(txCtx, req, res); err != nil {
			return err
		}
		evts, err = s.buildEvents(txCtx, req, res)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build lead events")
		}
		if s.events != nil {
			if err := s.events.Record(txCtx, evts...); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record lead events")
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res, evts, nil
}

func (s *Service) upsertContact(ctx context.Context, req Request) (*Result, error) {
	i := req.Integration
	lead := req.Lead
	fields := contactmodels.Fields{Name: lead.Name, Email: lead.Email, Phone: lead.Phone, CompanyName: lead.Company}
	now := requestcontext.Now(ctx)
	provider := i.Provider()

	existing, err := s.findContact(ctx, i.CompanyID, lead, provider, req.ExternalID)
	if err != nil {
		return nil, err
	}
	preferred, err := s.defaultUser(ctx, i)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		fields, externalID, err := s.unclaimed(ctx, existing, fields, provider, req.ExternalID)
		if err != nil {
			return nil, err
		}
		changed := existing.FillEmpty(fields)
		if existing.AttachExternalID(provider, externalID) {
			changed = true
		}
		if existing.AddTags(i.Settings.Tags...) {
			changed = true
		}
		if existing.ResponsibleUserID.IsNil() {
			owner, err := s.chain(ctx, i.CompanyID, preferred, id.UserID{})
			if err != nil {
				return nil, err
			}
			changed = existing.AssignIfUnowned(owner) || changed
		}
		if changed {
			existing.UpdatedAt = now
			if err := s.contacts.Update(ctx, existing); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) {
					return nil, errContactRace
				}
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update contact")
			}
		}
		return &Result{Contact: existing}, nil
	}

	owner, err := s.chain(ctx, i.CompanyID, preferred, id.UserID{})
	if err != nil {
		return nil, err
	}
	c, err := contactmodels.NewContact(id.NewContactID(), i.CompanyID, fields, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return nil, err
	}
	c.Source = i.Source()
	c.ResponsibleUserID = owner
	c.AttachExternalID(provider, req.ExternalID)
	c.AddTags(i.Settings.Tags...)
	if err := s.contacts.Create(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, errContactRace
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create contact")
	}
	return &Result{Contact: c, ContactCreated: true}, nil
}

// findContact looks a lead up by email, then phone, then provider id.
func (s *Service) findContact(ctx context.Context, companyID id.CompanyID, lead mapping.Lead, provider, externalID string) (*contactmodels.Contact, error) {
	lookups := []func() (*contactmodels.Contact, error){}
	if lead.Email != "" {
		lookups = append(lookups, func() (*contactmodels.Contact, error) {
			return s.contacts.FindByEmail(ctx, companyID, lead.Email)
		})
	}
	if lead.Phone != "" {
		lookups = append(lookups, func() (*contactmodels.Contact, error) {
			return s.contacts.FindByPhone(ctx, companyID, lead.Phone)
		})
	}
	if externalID != "" {
		lookups = append(lookups, func() (*contactmodels.Contact, error) {
			return s.contacts.FindByExternalID(ctx, companyID, provider, externalID)
		})
	}
	for _, lookup := range lookups {
		c, err := lookup()
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up contact")
		}
	}
	return nil, nil
}

// unclaimed drops the lead identifiers c is missing that another contact
// already owns. A lead matching two contacts fills only what is free instead
// of moving an identifier between them.
func (s *Service) unclaimed(ctx context.Context, c *contactmodels.Contact, f contactmodels.Fields, provider, externalID string) (contactmodels.Fields, string, error) {
	foreign := func(found *contactmodels.Contact, err error) (bool, error) {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up contact")
		}
		return found.ID != c.ID, nil
	}
	var skipped []string
	if c.Email == "" && f.Email != "" {
		taken, err := foreign(s.contacts.FindByEmail(ctx, c.CompanyID, f.Email))
		if err != nil {
			return f, "", err
		}
		if taken {
			f.Email = ""
			skipped = append(skipped, "email")
		}
	}
	if c.Phone == "" && f.Phone != "" {
		taken, err := foreign(s.contacts.FindByPhone(ctx, c.CompanyID, f.Phone))
		if err != nil {
			return f, "", err
		}
		if taken {
			f.Phone = ""
			skipped = append(skipped, "phone")
		}
	}
	if _, ok := c.ExternalIDs[strings.ToLower(provider)]; !ok && externalID != "" {
		taken, err := foreign(s.contacts.FindByExternalID(ctx, c.CompanyID, provider, externalID))
		if err != nil {
			return f, "", err
		}
		if taken {
			externalID = ""
			skipped = append(skipped, "external_id")
		}
	}
	if len(skipped) > 0 {
		s.logger.InfoContext(ctx, "lead identifiers belong to another contact, not copied",
			"company_id", c.CompanyID,
			"contact_id", c.ID,
			"fields", skipped,
		)
	}
	return f, externalID, nil
}

// defaultUser returns the integration's default responsible user when it
// still belongs to the company, or the nil id.
func (s *Service) defaultUser(ctx context.Context, i *integrationmodels.Integration) (id.UserID, error) {
	userID := i.Settings.DefaultUserID
	if userID.IsNil() {
		return id.UserID{}, nil
	}
	if _, err := s.users.FindByID(ctx, i.CompanyID, userID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "integration default user is gone, falling back",
				"integration_id", i.ID,
				"user_id", userID,
			)
			return id.UserID{}, nil
		}
		return id.UserID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load default user")
	}
	return userID, nil
}

// chain applies the responsible-user fallback: preferred, then current
// owner, then the company's earliest user.
func (s *Service) chain(ctx context.Context, companyID id.CompanyID, preferred, owner id.UserID) (id.UserID, error) {
	if !preferred.IsNil() {
		return preferred, nil
	}
	if !owner.IsNil() {
		return owner, nil
	}
	first, err := s.users.FindFirstByCompany(ctx, companyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return id.UserID{}, dErrors.New(dErrors.CodeConflict, "company has no users to assign the lead to")
	}
	if err != nil {
		return id.UserID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load company users")
	}
	return first.ID, nil
}

func (s *Service) openDeal(ctx context.Context, req Request, res *Result) error {
	i := req.Integration
	if !i.Settings.CreateDeal {
		return nil
	}
	c := res.Contact
	source := i.Source()

	open, err := s.deals.FindOpenByContactSource(ctx, i.CompanyID, c.ID, source)
	if err == nil {
		res.Deal = open
		return nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up open deal")
	}

	p, stage, ok, err := s.pipelines.Resolve(ctx, i.CompanyID, i.Settings.PipelineID, i.Settings.Stage)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.WarnContext(ctx, "company has no pipeline, lead deal skipped",
			"company_id", i.CompanyID,
			"integration_id", i.ID,
		)
		return nil
	}
	preferred, err := s.defaultUser(ctx, i)
	if err != nil {
		return err
	}
	owner, err := s.chain(ctx, i.CompanyID, preferred, c.ResponsibleUserID)
	if err != nil {
		return err
	}

	d, err := dealmodels.NewDeal(id.NewDealID(), i.CompanyID, p.ID, stage, dealTitle(i, c), requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	d.ContactID = c.ID
	d.Source = source
	d.ResponsibleUserID = owner
	if err := s.deals.Create(ctx, d); err != nil {
		if !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create deal")
		}
		// A concurrent lead opened the deal first; reuse it.
		winner, err := s.deals.FindOpenByContactSource(ctx, i.CompanyID, c.ID, source)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load concurrently opened deal")
		}
		res.Deal = winner
		return nil
	}
	res.Deal = d
	res.DealCreated = true
	return nil
}

func dealTitle(i *integrationmodels.Integration, c *contactmodels.Contact) string {
	title := i.Name + ": " + c.Name
	if len(title) > 256 {
		title = strings.ToValidUTF8(title[:256], "")
	}
	return title
}

func (s *Service) buildEvents(ctx context.Context, req Request, res *Result) ([]*events.Event, error) {
	now := requestcontext.Now(ctx)
	var evts []*events.Event
	if res.ContactCreated {
		e, err := res.Contact.CreatedEvent(now)
		if err != nil {
			return nil, err
		}
		evts = append(evts, e)
	}
	if res.DealCreated {
		e, err := res.Deal.CreatedEvent(now)
		if err != nil {
			return nil, err
		}
		evts = append(evts, e)
	}

	i := req.Integration
	received := events.LeadReceived{
		IntegrationID:     i.ID,
		Kind:              string(i.Kind),
		Source:            i.Source(),
		ContactID:         res.Contact.ID,
		ContactCreated:    res.ContactCreated,
		DealCreated:       res.DealCreated,
		ResponsibleUserID: res.Contact.ResponsibleUserID,
		Message:           req.Lead.Message,
		Metadata:          req.Metadata,
	}
	if res.Deal != nil {
		received.DealID = res.Deal.ID
		received.ResponsibleUserID = res.Deal.ResponsibleUserID
	}
	e, err := events.New(i.CompanyID, events.TypeLeadReceived, res.Contact.ID.String(), received, now)
	if err != nil {
		return nil, err
	}
	return append(evts, e), nil
}
