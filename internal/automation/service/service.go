package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	automationmetrics "crmhub/internal/automation/metrics"
	"crmhub/internal/automation/models"
	"crmhub/internal/events"
	tenantmodels "crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, r *models.Rule) error
	List(ctx context.Context, companyID id.CompanyID) ([]*models.Rule, error)
	ListByTrigger(ctx context.Context, companyID id.CompanyID, trigger events.Type) ([]*models.Rule, error)
	Delete(ctx context.Context, companyID id.CompanyID, ruleID id.RuleID) error
}

type UserLookup interface {
	FindByID(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*tenantmodels.User, error)
}

type Service struct {
	store   Store
	users   UserLookup
	actions Actions
	logger  *slog.Logger
	metrics *automationmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *automationmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, users UserLookup, actions Actions, opts ...Option) *Service {
	s := &Service{store: store, users: users, actions: actions}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

func (s *Service) Create(ctx context.Context, companyID id.CompanyID, req *models.CreateRuleRequest) (*models.Rule, error) {
	r, err := models.NewRule(id.NewRuleID(), companyID, req.Name, req.Trigger, req.Action, req.Params, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return nil, err
	}
	r.SourceFilter = strings.TrimSpace(req.SourceFilter)
	if !r.Params.UserID.IsNil() {
		if _, err := s.users.FindByID(ctx, companyID, r.Params.UserID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeValidation, "rule user does not belong to the company")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create rule")
	}
	s.logger.InfoContext(ctx, "automation rule created",
		"rule_id", r.ID,
		"company_id", companyID,
		"trigger", r.Trigger,
		"action", r.Action,
		"request_id", requestcontext.RequestID(ctx),
	)
	return r, nil
}

func (s *Service) List(ctx context.Context, companyID id.CompanyID) ([]*models.Rule, error) {
	rules, err := s.store.List(ctx, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list rules")
	}
	if rules == nil {
		rules = []*models.Rule{}
	}
	return rules, nil
}

func (s *Service) Delete(ctx context.Context, companyID id.CompanyID, ruleID id.RuleID) error {
	if err := s.store.Delete(ctx, companyID, ruleID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete rule")
	}
	return nil
}
