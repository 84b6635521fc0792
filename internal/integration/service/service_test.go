package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crmhub/internal/integration/models"
	integrationstore "crmhub/internal/integration/store"
	pipelineservice "crmhub/internal/pipeline/service"
	pipelinestore "crmhub/internal/pipeline/store"
	tenantmodels "crmhub/internal/tenant/models"
	userstore "crmhub/internal/tenant/store/user"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/requestcontext"
)

type IntegrationServiceSuite struct {
	suite.Suite
	ctx       context.Context
	service   *Service
	store     *integrationstore.InMemory
	pipelines *pipelineservice.Service
	companyID id.CompanyID
	userID    id.UserID
	generated int
}

func TestIntegrationServiceSuite(t *testing.T) {
	suite.Run(t, new(IntegrationServiceSuite))
}

func (s *IntegrationServiceSuite) SetupTest() {
	s.companyID = id.NewCompanyID()
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	users := userstore.NewInMemory()
	user, err := tenantmodels.NewUser(id.NewUserID(), s.companyID, "owner@example.com", "Owner", "hash", tenantmodels.RoleOwner, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(users.Create(s.ctx, user))
	s.userID = user.ID

	s.pipelines = pipelineservice.New(pipelinestore.NewInMemory())
	s.Require().NoError(s.pipelines.Bootstrap(s.ctx, s.companyID))

	s.generated = 0
	s.store = integrationstore.NewInMemory()
	s.service = New(s.store, users, s.pipelines, WithGenerator(func(n int) (string, error) {
		s.generated++
		return fmt.Sprintf("gen-%d-%d", n, s.generated), nil
	}))
}

func (s *IntegrationServiceSuite) create(kind models.Kind, secret *string) (*models.WithSecret, error) {
	return s.service.Create(s.ctx, s.companyID, &models.CreateIntegrationRequest{Kind: kind, Name: "Site", Secret: secret})
}

func ptr[T any](v T) *T { return &v }

func (s *IntegrationServiceSuite) TestCreateSecretsPerKind() {
	s.Run("webhook generates a secret by default", func() {
		res, err := s.create(models.KindWebhook, nil)
		s.Require().NoError(err)
		s.Equal("gen-24-1", res.Token)
		s.Equal("gen-32-2", res.Secret)
	})

	s.Run("webhook with empty secret is token only", func() {
		res, err := s.create(models.KindWebhook, ptr(""))
		s.Require().NoError(err)
		s.Empty(res.Secret)
		s.False(res.HasSecret())
	})

	s.Run("webform never has a secret", func() {
		res, err := s.create(models.KindWebform, ptr("ignored"))
		s.Require().NoError(err)
		s.Empty(res.Secret)
	})

	s.Run("telegram always generates", func() {
		res, err := s.create(models.KindTelegram, ptr(""))
		s.Require().NoError(err)
		s.NotEmpty(res.Secret)
	})

	s.Run("whatsapp requires the app secret", func() {
		_, err := s.create(models.KindWhatsApp, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		res, err := s.create(models.KindWhatsApp, ptr(" app-secret "))
		s.Require().NoError(err)
		s.Equal("app-secret", res.Secret)
		s.NotEmpty(res.VerifyToken)
	})
}

func (s *IntegrationServiceSuite) TestCreateValidatesSettings() {
	p, _, _, err := s.pipelines.Resolve(s.ctx, s.companyID, id.PipelineID{}, "")
	s.Require().NoError(err)

	tests := []struct {
		name     string
		settings models.Settings
		code     dErrors.Code
	}{
		{"unknown kind", models.Settings{}, dErrors.CodeValidation},
		{"foreign default user", models.Settings{DefaultUserID: id.NewUserID()}, dErrors.CodeValidation},
		{"unknown pipeline", models.Settings{PipelineID: id.NewPipelineID()}, dErrors.CodeValidation},
		{"unknown stage", models.Settings{PipelineID: p.ID, Stage: "nowhere"}, dErrors.CodeValidation},
		{"unknown mapped field", models.Settings{FieldMapping: map[string]string{"budget": "x"}}, dErrors.CodeValidation},
	}
	for i, tt := range tests {
		s.Run(tt.name, func() {
			kind := models.KindWebhook
			if i == 0 {
				kind = models.Kind("fax")
			}
			_, err := s.service.Create(s.ctx, s.companyID, &models.CreateIntegrationRequest{Kind: kind, Name: "x", Settings: tt.settings})
			s.True(dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}

	res, err := s.service.Create(s.ctx, s.companyID, &models.CreateIntegrationRequest{
		Kind: models.KindWebhook, Name: "ok",
		Settings: models.Settings{DefaultUserID: s.userID, PipelineID: p.ID, Stage: "New", CreateDeal: true},
	})
	s.Require().NoError(err)
	s.Equal("new", res.Settings.Stage)
}

func (s *IntegrationServiceSuite) TestRotateSecret() {
	res, err := s.create(models.KindTelegram, nil)
	s.Require().NoError(err)

	rotated, err := s.service.RotateSecret(s.ctx, s.companyID, res.ID)
	s.Require().NoError(err)
	s.NotEqual(res.Secret, rotated.Secret)
	s.Equal(res.Token, rotated.Token)

	stored, err := s.store.FindByToken(s.ctx, res.Token)
	s.Require().NoError(err)
	s.Equal(rotated.Secret, stored.Secret)

	wa, err := s.create(models.KindWhatsApp, ptr("app"))
	s.Require().NoError(err)
	_, err = s.service.RotateSecret(s.ctx, s.companyID, wa.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *IntegrationServiceSuite) TestResolveTokenHidesInactive() {
	res, err := s.create(models.KindWebhook, nil)
	s.Require().NoError(err)

	found, err := s.service.ResolveToken(s.ctx, res.Token)
	s.Require().NoError(err)
	s.Equal(res.ID, found.ID)

	_, err = s.service.Update(s.ctx, s.companyID, res.ID, &models.UpdateIntegrationRequest{Active: ptr(false)})
	s.Require().NoError(err)

	_, err = s.service.ResolveToken(s.ctx, res.Token)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.service.ResolveToken(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IntegrationServiceSuite) TestUpdate() {
	res, err := s.create(models.KindWebform, nil)
	s.Require().NoError(err)

	updated, err := s.service.Update(s.ctx, s.companyID, res.ID, &models.UpdateIntegrationRequest{
		Name:     ptr(" Landing "),
		Settings: &models.Settings{FormFields: []models.FormField{{Name: "phone", Required: true}}},
	})
	s.Require().NoError(err)
	s.Equal("Landing", updated.Name)
	s.Equal([]string{"phone"}, updated.RequiredFields())

	_, err = s.service.Update(s.ctx, s.companyID, res.ID, &models.UpdateIntegrationRequest{Name: ptr("  ")})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Update(s.ctx, id.NewCompanyID(), res.ID, &models.UpdateIntegrationRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IntegrationServiceSuite) TestListAndDelete() {
	_, err := s.create(models.KindWebhook, nil)
	s.Require().NoError(err)
	second, err := s.create(models.KindWebform, nil)
	s.Require().NoError(err)

	list, err := s.service.List(s.ctx, s.companyID)
	s.Require().NoError(err)
	s.Len(list, 2)

	s.Require().NoError(s.service.Delete(s.ctx, s.companyID, second.ID))
	err = s.service.Delete(s.ctx, s.companyID, second.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	empty, err := s.service.List(s.ctx, id.NewCompanyID())
	s.Require().NoError(err)
	s.NotNil(empty)
	s.Empty(empty)
}
