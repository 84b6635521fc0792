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

	"crmhub/internal/deal/handler/mocks"
	"crmhub/internal/deal/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/deal-mocks.go -package=mocks Service

type DealHandlerSuite struct {
	suite.Suite
	service   *mocks.MockService
	router    http.Handler
	companyID id.CompanyID
}

func TestDealHandlerSuite(t *testing.T) {
	suite.Run(t, new(DealHandlerSuite))
}

func (s *DealHandlerSuite) SetupTest() {
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

func (s *DealHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
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

func (s *DealHandlerSuite) TestList() {
	pipelineID := id.NewPipelineID()

	s.Run("filters", func() {
		s.service.EXPECT().List(gomock.Any(), s.companyID, models.ListFilter{PipelineID: pipelineID, Status: models.StatusOpen}).
			Return(nil, nil)

		rec := s.do(http.MethodGet, "/deals?status=open&pipeline_id="+pipelineID.String(), nil)
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"deals":[]}`, rec.Body.String())
	})

	s.Run("bad pipeline id", func() {
		rec := s.do(http.MethodGet, "/deals?pipeline_id=nope", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *DealHandlerSuite) TestCreate() {
	s.Run("created", func() {
		dealID := id.NewDealID()
		s.service.EXPECT().Create(gomock.Any(), s.companyID, &models.CreateDealRequest{Title: "Big one", Stage: "new", Amount: 100}).
			Return(&models.Deal{ID: dealID, Title: "Big one", Status: models.StatusOpen}, nil)

		rec := s.do(http.MethodPost, "/deals", map[string]any{"title": "Big one", "stage": "new", "amount": 100})
		s.Equal(http.StatusCreated, rec.Code)
		s.Contains(rec.Body.String(), dealID.String())
	})

	s.Run("validation", func() {
		s.service.EXPECT().Create(gomock.Any(), s.companyID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeValidation, "stage x does not exist in pipeline"))

		rec := s.do(http.MethodPost, "/deals", map[string]any{"title": "t", "stage": "x"})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("malformed body", func() {
		req := httptest.NewRequest(http.MethodPost, "/deals", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *DealHandlerSuite) TestUpdateAndDelete() {
	dealID := id.NewDealID()

	s.Run("update status", func() {
		s.service.EXPECT().Update(gomock.Any(), s.companyID, dealID, gomock.Any()).
			DoAndReturn(func(_ any, _ id.CompanyID, _ id.DealID, req *models.UpdateDealRequest) (*models.Deal, error) {
				s.Require().NotNil(req.Status)
				s.Equal(models.StatusWon, *req.Status)
				return &models.Deal{ID: dealID, Status: models.StatusWon}, nil
			})

		rec := s.do(http.MethodPut, "/deals/"+dealID.String(), map[string]string{"status": "won"})
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("delete missing", func() {
		s.service.EXPECT().Delete(gomock.Any(), s.companyID, dealID).
			Return(dErrors.New(dErrors.CodeNotFound, "deal not found"))

		rec := s.do(http.MethodDelete, "/deals/"+dealID.String(), nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}
