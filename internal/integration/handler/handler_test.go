package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"crmhub/internal/integration/handler/mocks"
	"crmhub/internal/integration/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/integration-mocks.go -package=mocks Service

type IntegrationHandlerSuite struct {
	suite.Suite
	service   *mocks.MockService
	router    http.Handler
	companyID id.CompanyID
}

func TestIntegrationHandlerSuite(t *testing.T) {
	suite.Run(t, new(IntegrationHandlerSuite))
}

func (s *IntegrationHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.companyID = id.NewCompanyID()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCompanyID(r.Context(), s.companyID)))
		})
	})
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
}

func (s *IntegrationHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *IntegrationHandlerSuite) TestCreateReturnsSecretOnce() {
	integrationID := id.NewIntegrationID()
	i := &models.Integration{ID: integrationID, Kind: models.KindWebhook, Name: "Site", Token: "tok", Secret: "s3cret"}

	s.service.EXPECT().Create(gomock.Any(), s.companyID, gomock.Any()).
		DoAndReturn(func(_ any, _ id.CompanyID, req *models.CreateIntegrationRequest) (*models.WithSecret, error) {
			s.Equal(models.KindWebhook, req.Kind)
			s.Equal(map[string]string{"email": "contact.mail"}, req.Settings.FieldMapping)
			return &models.WithSecret{Integration: i, Secret: i.Secret}, nil
		})

	rec := s.do(http.MethodPost, "/integrations", map[string]any{
		"kind": "webhook", "name": "Site",
		"settings": map[string]any{"field_mapping": map[string]string{"email": "contact.mail"}},
	})
	s.Equal(http.StatusCreated, rec.Code)
	s.Contains(rec.Body.String(), `"secret":"s3cret"`)

	s.service.EXPECT().Get(gomock.Any(), s.companyID, integrationID).Return(i, nil)
	rec = s.do(http.MethodGet, "/integrations/"+integrationID.String(), nil)
	s.Equal(http.StatusOK, rec.Code)
	s.NotContains(rec.Body.String(), "s3cret")
}

func (s *IntegrationHandlerSuite) TestList() {
	s.service.EXPECT().List(gomock.Any(), s.companyID).Return(nil, nil)

	rec := s.do(http.MethodGet, "/integrations", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"integrations":[]}`, rec.Body.String())
}

func (s *IntegrationHandlerSuite) TestRotateSecret() {
	integrationID := id.NewIntegrationID()

	s.Run("rotated", func() {
		s.service.EXPECT().RotateSecret(gomock.Any(), s.companyID, integrationID).
			Return(&models.WithSecret{Integration: &models.Integration{ID: integrationID}, Secret: "fresh"}, nil)

		rec := s.do(http.MethodPost, "/integrations/"+integrationID.String()+"/rotate-secret", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"secret":"fresh"`)
	})

	s.Run("unsupported kind", func() {
		s.service.EXPECT().RotateSecret(gomock.Any(), s.companyID, integrationID).
			Return(nil, dErrors.New(dErrors.CodeBadRequest, "secret cannot be rotated for whatsapp integrations"))

		rec := s.do(http.MethodPost, "/integrations/"+integrationID.String()+"/rotate-secret", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("bad id", func() {
		rec := s.do(http.MethodPost, "/integrations/nope/rotate-secret", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *IntegrationHandlerSuite) TestUpdateAndDelete() {
	integrationID := id.NewIntegrationID()

	s.service.EXPECT().Update(gomock.Any(), s.companyID, integrationID, gomock.Any()).
		DoAndReturn(func(_ any, _ id.CompanyID, _ id.IntegrationID, req *models.UpdateIntegrationRequest) (*models.Integration, error) {
			s.Require().NotNil(req.Active)
			s.False(*req.Active)
			return &models.Integration{ID: integrationID}, nil
		})
	rec := s.do(http.MethodPut, "/integrations/"+integrationID.String(), map[string]any{"active": false})
	s.Equal(http.StatusOK, rec.Code)

	s.service.EXPECT().Delete(gomock.Any(), s.companyID, integrationID).Return(nil)
	rec = s.do(http.MethodDelete, "/integrations/"+integrationID.String(), nil)
	s.Equal(http.StatusNoContent, rec.Code)

	s.service.EXPECT().Delete(gomock.Any(), s.companyID, integrationID).
		Return(dErrors.Wrap(io.ErrUnexpectedEOF, dErrors.CodeInternal, "integration store failure"))
	rec = s.do(http.MethodDelete, "/integrations/"+integrationID.String(), nil)
	s.Equal(http.StatusInternalServerError, rec.Code)
}
