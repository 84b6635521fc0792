package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"crmhub/internal/events"
	"crmhub/internal/notify/channel"
	notifymetrics "crmhub/internal/notify/metrics"
	"crmhub/internal/notify/models"
	notifystore "crmhub/internal/notify/store"
	tenantmodels "crmhub/internal/tenant/models"
	userstore "crmhub/internal/tenant/store/user"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/circuit"
	"crmhub/pkg/requestcontext"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingChannel struct {
	name string
	err  error

	mu        sync.Mutex
	delivered []*models.Notification
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, user *tenantmodels.User, n *models.Notification) error {
	if c.err != nil {
		return c.err
	}
	if c.name == "telegram" && user.TelegramChatID == 0 {
		return channel.ErrNoAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, n)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

type NotifyServiceSuite struct {
	suite.Suite
	ctx       context.Context
	store     *notifystore.InMemory
	metrics   *notifymetrics.Metrics
	email     *recordingChannel
	telegram  *recordingChannel
	service   *Service
	companyID id.CompanyID
	user      *tenantmodels.User
	now       time.Time
}

func TestNotifyServiceSuite(t *testing.T) {
	suite.Run(t, new(NotifyServiceSuite))
}

func (s *NotifyServiceSuite) SetupTest() {
	s.companyID = id.NewCompanyID()
	s.now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	users := userstore.NewInMemory()
	user, err := tenantmodels.NewUser(id.NewUserID(), s.companyID, "owner@example.com", "Owner", "hash", tenantmodels.RoleOwner, s.now)
	s.Require().NoError(err)
	s.Require().NoError(users.Create(s.ctx, user))
	s.user = user

	s.store = notifystore.NewInMemory()
	s.metrics = notifymetrics.New(prometheus.NewRegistry())
	s.email = &recordingChannel{name: "email"}
	s.telegram = &recordingChannel{name: "telegram"}
	s.service = New(s.store, users,
		WithMetrics(s.metrics),
		WithChannel(s.email),
		WithChannel(s.telegram),
	)
}

func (s *NotifyServiceSuite) request() models.Request {
	return models.Request{CompanyID: s.companyID, UserID: s.user.ID, Kind: models.KindAutomation, Title: "Call back"}
}

func (s *NotifyServiceSuite) TestNotifyStoresAndFansOut() {
	n, err := s.service.Notify(s.ctx, s.request())
	s.Require().NoError(err)
	s.Equal(s.now, n.CreatedAt)

	stored, err := s.service.List(s.ctx, s.user.ID, models.ListFilter{})
	s.Require().NoError(err)
	s.Len(stored, 1)

	s.Equal(1, s.email.count())
	s.Equal(0, s.telegram.count())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Deliveries.WithLabelValues("email", "sent")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Deliveries.WithLabelValues("telegram", "skipped")))
}

func (s *NotifyServiceSuite) TestChannelFailureIsNotReturned() {
	s.email.err = errors.New("smtp down")

	_, err := s.service.Notify(s.ctx, s.request())
	s.Require().NoError(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Deliveries.WithLabelValues("email", "failed")))
}

func (s *NotifyServiceSuite) TestBreakerSkipsFailingChannel() {
	failing := &recordingChannel{name: "email", err: errors.New("smtp down")}
	svc := New(s.store, s.service.users,
		WithMetrics(s.metrics),
		WithChannel(failing, circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)),
	)
	for range 3 {
		_, err := svc.Notify(s.ctx, s.request())
		s.Require().NoError(err)
	}
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Deliveries.WithLabelValues("email", "failed")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Deliveries.WithLabelValues("email", "skipped")))
}

func (s *NotifyServiceSuite) TestNotifyValidation() {
	req := s.request()
	req.UserID = id.NewUserID()
	_, err := s.service.Notify(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	req = s.request()
	req.Title = ""
	_, err = s.service.Notify(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *NotifyServiceSuite) TestMarkRead() {
	n, err := s.service.Notify(s.ctx, s.request())
	s.Require().NoError(err)

	read, err := s.service.MarkRead(s.ctx, s.user.ID, n.ID)
	s.Require().NoError(err)
	s.Require().NotNil(read.ReadAt)

	later := requestcontext.WithTime(s.ctx, s.now.Add(time.Hour))
	again, err := s.service.MarkRead(later, s.user.ID, n.ID)
	s.Require().NoError(err)
	s.Equal(s.now, *again.ReadAt)

	unread, err := s.service.List(s.ctx, s.user.ID, models.ListFilter{UnreadOnly: true})
	s.Require().NoError(err)
	s.Empty(unread)

	_, err = s.service.MarkRead(s.ctx, id.NewUserID(), n.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *NotifyServiceSuite) TestHandleEvent() {
	event := func(typ events.Type, payload any) *events.Event {
		e, err := events.New(s.companyID, typ, "agg", payload, s.now)
		s.Require().NoError(err)
		return e
	}

	s.Require().NoError(s.service.HandleEvent(s.ctx, event(events.TypeContactCreated, events.ContactCreated{
		ContactID: id.NewContactID(), Name: "Ann", Email: "ann@example.com", Source: "webform:Site", ResponsibleUserID: s.user.ID,
	})))
	s.Require().NoError(s.service.HandleEvent(s.ctx, event(events.TypeDealCreated, events.DealCreated{
		DealID: id.NewDealID(), Title: "Site: Ann", Stage: "new", ResponsibleUserID: s.user.ID,
	})))
	// A lead that created its contact is already covered.
	s.Require().NoError(s.service.HandleEvent(s.ctx, event(events.TypeLeadReceived, events.LeadReceived{
		Source: "webform:Site", ContactCreated: true, ResponsibleUserID: s.user.ID,
	})))
	s.Require().NoError(s.service.HandleEvent(s.ctx, event(events.TypeLeadReceived, events.LeadReceived{
		Source: "telegram:Bot", Message: "hello again", ResponsibleUserID: s.user.ID,
	})))
	// No owner, nobody to tell.
	s.Require().NoError(s.service.HandleEvent(s.ctx, event(events.TypeContactCreated, events.ContactCreated{Name: "Orphan"})))

	got, err := s.service.List(s.ctx, s.user.ID, models.ListFilter{})
	s.Require().NoError(err)
	titles := map[string]string{}
	for _, n := range got {
		titles[n.Title] = n.Body
	}
	s.Equal(map[string]string{
		"New contact: Ann":              "webform:Site, ann@example.com",
		"New deal: Site: Ann":           "new",
		"Repeat lead from telegram:Bot": "hello again",
	}, titles)
}
