package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	contactmodels "crmhub/internal/contact/models"
	dealmetrics "crmhub/internal/deal/metrics"
	"crmhub/internal/deal/models"
	"crmhub/internal/events"
	pipelinemodels "crmhub/internal/pipeline/models"
	tenantmodels "crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/platform/tx"
	"crmhub/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, d *models.Deal) error
	Update(ctx context.Context, d *models.Deal) error
	FindByID(ctx context.Context, companyID id.CompanyID, dealID id.DealID) (*models.Deal, error)
	List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Deal, error)
	Delete(ctx context.Context, companyID id.CompanyID, dealID id.DealID) error
}

// Pipelines resolves where a deal lives.
type Pipelines interface {
	Get(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (*pipelinemodels.Pipeline, error)
	Resolve(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID, stage string) (*pipelinemodels.Pipeline, string, bool, error)
}

type ContactLookup interface {
	FindByID(ctx context.Context, companyID id.CompanyID, contactID id.ContactID) (*contactmodels.Contact, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*tenantmodels.User, error)
}

type EventRecorder interface {
	Record(ctx context.Context, evts ...*events.Event) error
	Dispatch(ctx context.Context, evts ...*events.Event)
}

// SourceManual marks deals opened through the API.
const SourceManual = models.SourceManual

type Service struct {
	store     Store
	pipelines Pipelines
	contacts  ContactLookup
	users     UserLookup
	events    EventRecorder
	tx        tx.Runner
	logger    *slog.Logger
	metrics   *dealmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *dealmetrics.Metrics) Option {
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

func New(store Store, pipelines Pipelines, contacts ContactLookup, users UserLookup, opts ...Option) *Service {
	s := &Service{store: store, pipelines: pipelines, contacts: contacts, users: users}
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

// Create opens a deal. Without a pipeline the company default is used; a
// named stage must exist in the chosen pipeline, otherwise the first stage
// is used.
func (s *Service) Create(ctx context.Context, companyID id.CompanyID, req *models.CreateDealRequest) (*models.Deal, error) {
	req.Normalize()
	var d *models.Deal
	var created *events.Event
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, stage, err := s.placement(txCtx, companyID, req.PipelineID, req.Stage)
		if err != nil {
			return err
		}
		if !req.ContactID.IsNil() {
			if _, err := s.contacts.FindByID(txCtx, companyID, req.ContactID); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeValidation, "contact not found")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contact")
			}
		}
		responsible := req.ResponsibleUserID
		if responsible.IsNil() {
			responsible = requestcontext.UserID(txCtx)
		}
		if err := s.ensureUser(txCtx, companyID, responsible); err != nil {
			return err
		}

		now := requestcontext.Now(txCtx)
		d, err = models.NewDeal(id.NewDealID(), companyID, p.ID, stage, req.Title, now)
		if err != nil {
			return asValidation(err)
		}
		if err := d.SetAmount(req.Amount, req.Currency); err != nil {
			return asValidation(err)
		}
		d.ContactID = req.ContactID
		d.ResponsibleUserID = responsible
		d.Source = SourceManual

		if created, err = d.CreatedEvent(now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build deal event")
		}
		if err := s.store.Create(txCtx, d); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create deal")
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
	return d, nil
}

func (s *Service) placement(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID, stage string) (*pipelinemodels.Pipeline, string, error) {
	if !pipelineID.IsNil() {
		p, err := s.pipelines.Get(ctx, companyID, pipelineID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return nil, "", dErrors.New(dErrors.CodeValidation, "pipeline not found")
			}
			return nil, "", err
		}
		if stage == "" {
			return p, p.FirstStage(), nil
		}
		if !p.HasStage(stage) {
			return nil, "", dErrors.New(dErrors.CodeValidation, "stage "+stage+" does not exist in pipeline")
		}
		return p, stage, nil
	}
	p, resolved, ok, err := s.pipelines.Resolve(ctx, companyID, id.PipelineID{}, stage)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", dErrors.New(dErrors.CodeConflict, "company has no pipeline")
	}
	if stage != "" && resolved != stage {
		return nil, "", dErrors.New(dErrors.CodeValidation, "stage "+stage+" does not exist in pipeline")
	}
	return p, resolved, nil
}

func (s *Service) Get(ctx context.Context, companyID id.CompanyID, dealID id.DealID) (*models.Deal, error) {
	d, err := s.store.FindByID(ctx, companyID, dealID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Deal, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid deal status")
	}
	deals, err := s.store.List(ctx, companyID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deals")
	}
	if deals == nil {
		deals = []*models.Deal{}
	}
	return deals, nil
}

// Update edits title, amount, stage, status or owner. A stage must exist in
// the deal's pipeline.
func (s *Service) Update(ctx context.Context, companyID id.CompanyID, dealID id.DealID, req *models.UpdateDealRequest) (*models.Deal, error) {
	var (
		updated *models.Deal
		closed  bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		d, err := s.store.FindByID(txCtx, companyID, dealID)
		if err != nil {
			return wrapNotFound(err)
		}
		now := requestcontext.Now(txCtx)
		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				return dErrors.New(dErrors.CodeValidation, "deal title cannot be empty")
			}
			d.Title = title
		}
		if req.Amount != nil || req.Currency != nil {
			amount, currency := d.Amount, d.Currency
			if req.Amount != nil {
				amount = *req.Amount
			}
			if req.Currency != nil {
				currency = *req.Currency
			}
			if err := d.SetAmount(amount, currency); err != nil {
				return asValidation(err)
			}
		}
		if req.Stage != nil {
			stage := strings.ToLower(strings.TrimSpace(*req.Stage))
			p, err := s.pipelines.Get(txCtx, companyID, d.PipelineID)
			if err != nil {
				return err
			}
			if !p.HasStage(stage) {
				return dErrors.New(dErrors.CodeValidation, "stage "+stage+" does not exist in pipeline")
			}
			d.Stage = stage
		}
		if req.Status != nil {
			wasOpen := d.IsOpen()
			if err := d.SetStatus(*req.Status, now); err != nil {
				return asValidation(err)
			}
			closed = wasOpen && !d.IsOpen()
		}
		if req.ResponsibleUserID != nil {
			if err := s.ensureUser(txCtx, companyID, *req.ResponsibleUserID); err != nil {
				return err
			}
			d.ResponsibleUserID = *req.ResponsibleUserID
		}
		d.UpdatedAt = now
		if err := s.store.Update(txCtx, d); err != nil {
			return wrapNotFound(err)
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	if closed && s.metrics != nil {
		s.metrics.IncrementClosed(string(updated.Status))
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, companyID id.CompanyID, dealID id.DealID) error {
	if err := s.store.Delete(ctx, companyID, dealID); err != nil {
		return wrapNotFound(err)
	}
	s.logger.InfoContext(ctx, "deal deleted",
		"deal_id", dealID,
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
		return dErrors.New(dErrors.CodeNotFound, "deal not found")
	}
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		return dErrors.New(dErrors.CodeConflict, "contact already has an open deal from this source")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "deal store failure")
}

func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
	}
	return err
}
