package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"crmhub/internal/notify/handler/mocks"
	"crmhub/internal/notify/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/notify-mocks.go -package=mocks Service

type NotificationHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
	userID  id.UserID
}

func TestNotificationHandlerSuite(t *testing.T) {
	suite.Run(t, new(NotificationHandlerSuite))
}

func (s *NotificationHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.userID = id.NewUserID()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(r.Context(), s.userID)))
		})
	})
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
}

func (s *NotificationHandlerSuite) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func (s *NotificationHandlerSuite) TestListUnread() {
	s.service.EXPECT().List(gomock.Any(), s.userID, models.ListFilter{UnreadOnly: true, Limit: 10}).Return(nil, nil)

	rec := s.do(http.MethodGet, "/notifications?unread=true&limit=10")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"notifications":[]}`, rec.Body.String())
}

func (s *NotificationHandlerSuite) TestListRejectsBadLimit() {
	rec := s.do(http.MethodGet, "/notifications?limit=1000")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *NotificationHandlerSuite) TestMarkRead() {
	notificationID := id.NewNotificationID()
	s.service.EXPECT().MarkRead(gomock.Any(), s.userID, notificationID).
		Return(&models.Notification{ID: notificationID, Title: "New lead"}, nil)

	rec := s.do(http.MethodPost, "/notifications/"+notificationID.String()+"/read")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), notificationID.String())
}

func (s *NotificationHandlerSuite) TestMarkReadErrors() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/notifications/not-a-uuid/read").Code)

	notificationID := id.NewNotificationID()
	s.service.EXPECT().MarkRead(gomock.Any(), s.userID, notificationID).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "notification not found"))
	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/notifications/"+notificationID.String()+"/read").Code)
}
