package service

import (
	"context"
	"errors"
	"log/slog"

	"crmhub/internal/pipeline/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/platform/tx"
	"crmhub/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Pipeline) error
	Update(ctx context.Context, p *models.Pipeline) error
	SetDefault(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) error
	FindByID(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (*models.Pipeline, error)
	FindDefault(ctx context.Context, companyID id.CompanyID) (*models.Pipeline, error)
	List(ctx context.Context, companyID id.CompanyID) ([]*models.Pipeline, error)
	Delete(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) error
}

// OpenDealCounter reports how many open deals sit in a pipeline or stage.
type OpenDealCounter interface {
	CountOpenByPipeline(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (int, error)
	CountOpenByStage(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID, stage string) (int, error)
}

type Service struct {
	store  Store
	deals  OpenDealCounter
	tx     tx.Runner
	logger *slog.Logger
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

// WithOpenDealCounter enables the guards against orphaning open deals.
func WithOpenDealCounter(counter OpenDealCounter) Option {
	return func(s *Service) {
		s.deals = counter
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
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

// Bootstrap creates the default sales pipeline for a new company.
func (s *Service) Bootstrap(ctx context.Context, companyID id.CompanyID) error {
	p, err := models.NewPipeline(id.NewPipelineID(), companyID, "Sales", models.DefaultStages(), requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	p.IsDefault = true
	return s.store.Create(ctx, p)
}

func (s *Service) List(ctx context.Context, companyID id.CompanyID) ([]*models.Pipeline, error) {
	pipelines, err := s.store.List(ctx, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pipelines")
	}
	return pipelines, nil
}

func (s *Service) Get(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (*models.Pipeline, error) {
	p, err := s.store.FindByID(ctx, companyID, pipelineID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return p, nil
}

// Create adds a pipeline. The company's first pipeline becomes the default.
func (s *Service) Create(ctx context.Context, companyID id.CompanyID, req *models.CreatePipelineRequest) (*models.Pipeline, error) {
	p, err := models.NewPipeline(id.NewPipelineID(), companyID, req.Name, req.Stages, requestcontext.Now(ctx))
	if err != nil {
		return nil, asValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.FindDefault(txCtx, companyID)
		hasDefault := err == nil
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load default pipeline")
		}
		if err := s.store.Create(txCtx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create pipeline")
		}
		if req.IsDefault || !hasDefault {
			if err := s.store.SetDefault(txCtx, companyID, p.ID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set default pipeline")
			}
			p.IsDefault = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update renames, restages or promotes a pipeline. Removing a stage that
// open deals still sit in is refused.
func (s *Service) Update(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID, req *models.UpdatePipelineRequest) (*models.Pipeline, error) {
	var updated *models.Pipeline
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.store.FindByID(txCtx, companyID, pipelineID)
		if err != nil {
			return wrapNotFound(err)
		}
		if req.Name != nil {
			candidate, err := models.NewPipeline(p.ID, companyID, *req.Name, p.Stages, p.CreatedAt)
			if err != nil {
				return asValidation(err)
			}
			p.Name = candidate.Name
		}
		if req.Stages != nil {
			stages, err := models.NormalizeStages(*req.Stages)
			if err != nil {
				return asValidation(err)
			}
			if err := s.ensureStagesEmpty(txCtx, p, stages); err != nil {
				return err
			}
			p.Stages = stages
		}
		p.UpdatedAt = requestcontext.Now(txCtx)
		if err := s.store.Update(txCtx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update pipeline")
		}
		if req.IsDefault && !p.IsDefault {
			if err := s.store.SetDefault(txCtx, companyID, p.ID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set default pipeline")
			}
			p.IsDefault = true
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a pipeline that has no open deals. The default pipeline
// cannot be deleted while others exist.
func (s *Service) Delete(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.store.FindByID(txCtx, companyID, pipelineID)
		if err != nil {
			return wrapNotFound(err)
		}
		if s.deals != nil {
			open, err := s.deals.CountOpenByPipeline(txCtx, companyID, pipelineID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count open deals")
			}
			if open > 0 {
				return dErrors.New(dErrors.CodeConflict, "pipeline has open deals")
			}
		}
		if p.IsDefault {
			all, err := s.store.List(txCtx, companyID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pipelines")
			}
			if len(all) > 1 {
				return dErrors.New(dErrors.CodeConflict, "choose another default pipeline first")
			}
		}
		if err := s.store.Delete(txCtx, companyID, pipelineID); err != nil {
			return wrapNotFound(err)
		}
		s.logger.InfoContext(txCtx, "pipeline deleted",
			"pipeline_id", pipelineID,
			"company_id", companyID,
			"request_id", requestcontext.RequestID(txCtx),
		)
		return nil
	})
}

// Resolve picks the pipeline and stage for a new deal. A nil pipelineID
// selects the company default; an empty stage selects the first stage.
// ok is false when the company has no usable pipeline.
func (s *Service) Resolve(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID, stage string) (p *models.Pipeline, stageKey string, ok bool, err error) {
	if !pipelineID.IsNil() {
		p, err = s.store.FindByID(ctx, companyID, pipelineID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pipeline")
		}
	}
	if p == nil {
		p, err = s.store.FindDefault(ctx, companyID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", false, nil
		}
		if err != nil {
			return nil, "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load default pipeline")
		}
	}
	if stage == "" || !p.HasStage(stage) {
		stage = p.FirstStage()
	}
	return p, stage, true, nil
}

// ensureStagesEmpty refuses to drop stages that still hold open deals.
func (s *Service) ensureStagesEmpty(ctx context.Context, p *models.Pipeline, next []models.Stage) error {
	if s.deals == nil {
		return nil
	}
	kept := &models.Pipeline{Stages: next}
	for _, st := range p.Stages {
		if kept.HasStage(st.Key) {
			continue
		}
		open, err := s.deals.CountOpenByStage(ctx, p.CompanyID, p.ID, st.Key)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count open deals")
		}
		if open > 0 {
			return dErrors.New(dErrors.CodeConflict, "stage "+st.Key+" still has open deals")
		}
	}
	return nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "pipeline not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "pipeline store failure")
}

func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
	}
	return err
}
