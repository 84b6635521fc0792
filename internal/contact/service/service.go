package service

import (
	"context"
	"errors"
	"log/slog"

	contactmetrics "crmhub/internal/contact/metrics"
	"crmhub/internal/contact/models"
	"crmhub/internal/events"
	tenantmodels "crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/platform/tx"
	"crmhub/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, c *models.Contact) error
	Update(ctx context.Context, c *models.Contact) error
	FindByID(ctx context.Context, companyID id.CompanyID, contactID id.ContactID) (*models.Contact, error)
	List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Contact, int, error)
	Delete(ctx context.Context, companyID id.CompanyID, contactID id.ContactID) error
}

// UserLookup confirms a responsible user belongs to the company.
type UserLookup interface {
	FindByID(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*tenantmodels.User, error)
}

// EventRecorder writes events inside the unit of work and dispatches them
// after commit.
type EventRecorder interface {
	Record(ctx context.Context, evts ...*events.Event) error
	Dispatch(ctx context.Context, evts ...*events.Event)
}

// SourceManual marks contacts entered through the API.
const SourceManual = "manual"

type Service struct {
	store   Store
	users   UserLookup
	events  EventRecorder
	tx      tx.Runner
	logger  *slog.Logger
	metrics *contactmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *contactmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
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

func New(store Store, users UserLookup, opts ...Option) *Service {
	s := &Service{store: store, users: users}
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

// Create adds a contact. The caller becomes responsible unless the request
// names another user of the company.
func (s *Service) Create(ctx context.Context, companyID id.CompanyID, req *models.CreateContactRequest) (*models.Contact, error) {
	fields, err := req.Fields()
	if err != nil {
		return nil, err
	}
	responsible := req.ResponsibleUserID
	if responsible.IsNil() {
		responsible = requestcontext.UserID(ctx)
	}
	if err := s.ensureUser(ctx, companyID, responsible); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	c, err := models.NewContact(id.NewContactID(), companyID, fields, now)
	if err != nil {
		return nil, asValidation(err)
	}
	c.Source = SourceManual
	c.ResponsibleUserID = responsible
	c.AddTags(req.Tags...)

	created, err := c.CreatedEvent(now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build contact event")
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, c); err != nil {
			return wrapWriteErr(err)
		}
		return s.record(txCtx, created)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, created)
	if s.metrics != nil {
		s.metrics.IncrementCreated("api")
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, companyID id.CompanyID, contactID id.ContactID) (*models.Contact, error) {
	c, err := s.store.FindByID(ctx, companyID, contactID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) (*models.Page, error) {
	filter.Normalize()
	contacts, total, err := s.store.List(ctx, companyID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contacts")
	}
	if contacts == nil {
		contacts = []*models.Contact{}
	}
	return &models.Page{Contacts: contacts, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *Service) Update(ctx context.Context, companyID id.CompanyID, contactID id.ContactID, req *models.UpdateContactRequest) (*models.Contact, error) {
	var updated *models.Contact
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.store.FindByID(txCtx, companyID, contactID)
		if err != nil {
			return wrapNotFound(err)
		}
		if err := req.Apply(c); err != nil {
			return err
		}
		if c.Email == "" && c.Phone == "" && c.Name == "" {
			return dErrors.New(dErrors.CodeValidation, "contact needs a name, email or phone")
		}
		if req.ResponsibleUserID != nil && !c.ResponsibleUserID.IsNil() {
			if err := s.ensureUser(txCtx, companyID, c.ResponsibleUserID); err != nil {
				return err
			}
		}
		c.UpdatedAt = requestcontext.Now(txCtx)
		if err := s.store.Update(txCtx, c); err != nil {
			return wrapWriteErr(err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddTags merges tags into a contact. Used by automation rules.
func (s *Service) AddTags(ctx context.Context, companyID id.CompanyID, contactID id.ContactID, tags ...string) (*models.Contact, error) {
	var updated *models.Contact
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.store.FindByID(txCtx, companyID, contactID)
		if err != nil {
			return wrapNotFound(err)
		}
		updated = c
		if !c.AddTags(tags...) {
			return nil
		}
		c.UpdatedAt = requestcontext.Now(txCtx)
		if err := s.store.Update(txCtx, c); err != nil {
			return wrapWriteErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, companyID id.CompanyID, contactID id.ContactID) error {
	if err := s.store.Delete(ctx, companyID, contactID); err != nil {
		return wrapNotFound(err)
	}
	s.logger.InfoContext(ctx, "contact deleted",
		"contact_id", contactID,
		"company_id", companyID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Service) ensureUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) error {
	if userID.IsNil() {
		return nil
	}
	if _, err := s.users.FindByID(ctx, companyID, userID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeValidation, "responsible user does not belong to the company")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return nil
}

func (s *Service) record(ctx context.Context, evts ...*events.Event) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.Record(ctx, evts...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record events")
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, evts ...*events.Event) {
	if s.events != nil {
		s.events.Dispatch(ctx, evts...)
	}
}

func wrapNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "contact not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "contact store failure")
}

func wrapWriteErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "a contact with this email or phone already exists")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "contact not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save contact")
}

func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
	}
	return err
}
