package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"crmhub/internal/integration/models"
	pipelinemodels "crmhub/internal/pipeline/models"
	tenantmodels "crmhub/internal/tenant/models"
	"crmhub/internal/tenant/secrets"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/requestcontext"
)

const (
	tokenBytes  = 24
	secretBytes = 32
)

type Store interface {
	Create(ctx context.Context, i *models.Integration) error
	Update(ctx context.Context, i *models.Integration) error
	FindByID(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) (*models.Integration, error)
	FindByToken(ctx context.Context, token string) (*models.Integration, error)
	List(ctx context.Context, companyID id.CompanyID) ([]*models.Integration, error)
	Delete(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) error
}

type UserLookup interface {
	FindByID(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*tenantmodels.User, error)
}

type Pipelines interface {
	Get(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (*pipelinemodels.Pipeline, error)
}

type Service struct {
	store     Store
	users     UserLookup
	pipelines Pipelines
	logger    *slog.Logger
	generate  func(n int) (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithGenerator replaces the random token source.
func WithGenerator(generate func(n int) (string, error)) Option {
	return func(s *Service) {
		s.generate = generate
	}
}

func New(store Store, users UserLookup, pipelines Pipelines, opts ...Option) *Service {
	s := &Service{store: store, users: users, pipelines: pipelines, generate: secrets.Generate}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Create registers an integration. The token, and for signed kinds the
// secret, are generated server side and returned only here.
func (s *Service) Create(ctx context.Context, companyID id.CompanyID, req *models.CreateIntegrationRequest) (*models.WithSecret, error) {
	if err := s.validateSettings(ctx, companyID, &req.Settings); err != nil {
		return nil, err
	}
	token, err := s.generate(tokenBytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	i, err := models.NewIntegration(id.NewIntegrationID(), companyID, req.Kind, req.Name, token, requestcontext.Now(ctx))
	if err != nil {
		return nil, asValidation(err)
	}
	i.Settings = req.Settings
	if err := s.assignSecrets(i, req.Secret); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, i); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create integration")
	}
	s.logger.InfoContext(ctx, "integration created",
		"integration_id", i.ID,
		"company_id", companyID,
		"kind", i.Kind,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.WithSecret{Integration: i, Secret: i.Secret}, nil
}

func (s *Service) assignSecrets(i *models.Integration, provided *string) error {
	switch i.Kind {
	case models.KindWebform:
		return nil
	case models.KindWhatsApp:
		if provided == nil || strings.TrimSpace(*provided) == "" {
			return dErrors.New(dErrors.CodeValidation, "whatsapp integrations need the app secret")
		}
		i.Secret = strings.TrimSpace(*provided)
		verifyToken, err := s.generate(tokenBytes)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verify token")
		}
		i.VerifyToken = verifyToken
		return nil
	case models.KindWebhook:
		if provided != nil && *provided == "" {
			return nil
		}
	}
	secret, err := s.generate(secretBytes)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate secret")
	}
	i.Secret = secret
	return nil
}

func (s *Service) Get(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) (*models.Integration, error) {
	i, err := s.store.FindByID(ctx, companyID, integrationID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return i, nil
}

func (s *Service) List(ctx context.Context, companyID id.CompanyID) ([]*models.Integration, error) {
	list, err := s.store.List(ctx, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list integrations")
	}
	if list == nil {
		list = []*models.Integration{}
	}
	return list, nil
}

func (s *Service) Update(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID, req *models.UpdateIntegrationRequest) (*models.Integration, error) {
	i, err := s.store.FindByID(ctx, companyID, integrationID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "integration name cannot be empty")
		}
		i.Name = name
	}
	if req.Settings != nil {
		if err := s.validateSettings(ctx, companyID, req.Settings); err != nil {
			return nil, err
		}
		i.Settings = *req.Settings
	}
	if req.Active != nil {
		i.Active = *req.Active
	}
	i.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, i); err != nil {
		return nil, wrapNotFound(err)
	}
	return i, nil
}

// RotateSecret replaces the signing secret. WhatsApp app secrets are issued
// by Meta and web forms are unsigned, so neither can rotate here.
func (s *Service) RotateSecret(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) (*models.WithSecret, error) {
	i, err := s.store.FindByID(ctx, companyID, integrationID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if i.Kind == models.KindWhatsApp || i.Kind == models.KindWebform {
		return nil, dErrors.New(dErrors.CodeBadRequest, "secret cannot be rotated for "+string(i.Kind)+" integrations")
	}
	secret, err := s.generate(secretBytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate secret")
	}
	i.Secret = secret
	i.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, i); err != nil {
		return nil, wrapNotFound(err)
	}
	s.logger.InfoContext(ctx, "integration secret rotated",
		"integration_id", i.ID,
		"company_id", companyID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.WithSecret{Integration: i, Secret: secret}, nil
}

func (s *Service) Delete(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) error {
	if err := s.store.Delete(ctx, companyID, integrationID); err != nil {
		return wrapNotFound(err)
	}
	return nil
}

// ResolveToken finds the active integration behind an inbound token, across
// tenants. Unknown and disabled tokens are indistinguishable.
func (s *Service) ResolveToken(ctx context.Context, token string) (*models.Integration, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "integration not found")
	}
	i, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if !i.Active {
		return nil, dErrors.New(dErrors.CodeNotFound, "integration not found")
	}
	return i, nil
}

func (s *Service) validateSettings(ctx context.Context, companyID id.CompanyID, settings *models.Settings) error {
	if err := settings.Normalize(); err != nil {
		return err
	}
	if !settings.DefaultUserID.IsNil() {
		if _, err := s.users.FindByID(ctx, companyID, settings.DefaultUserID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeValidation, "default user does not belong to the company")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
	}
	if !settings.PipelineID.IsNil() {
		p, err := s.pipelines.Get(ctx, companyID, settings.PipelineID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.New(dErrors.CodeValidation, "pipeline not found")
			}
			return err
		}
		if settings.Stage != "" && !p.HasStage(settings.Stage) {
			return dErrors.New(dErrors.CodeValidation, "stage "+settings.Stage+" does not exist in pipeline")
		}
	}
	return nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "integration not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "integration store failure")
}

func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
	}
	return err
}
