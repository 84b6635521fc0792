package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"crmhub/internal/notify/channel"
	notifymetrics "crmhub/internal/notify/metrics"
	"crmhub/internal/notify/models"
	tenantmodels "crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/circuit"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/requestcontext"
)

// deliveryTimeout bounds one fan-out across all channels.
const deliveryTimeout = 10 * time.Second

type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkRead(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error)
	List(ctx context.Context, userID id.UserID, filter models.ListFilter) ([]*models.Notification, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*tenantmodels.User, error)
}

// Channel delivers a stored notification outside the application.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, user *tenantmodels.User, n *models.Notification) error
}

type guardedChannel struct {
	Channel
	breaker *circuit.Breaker
}

type Service struct {
	store    Store
	users    UserLookup
	channels []guardedChannel
	logger   *slog.Logger
	metrics  *notifymetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *notifymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithChannel adds an out-of-app channel. Each channel gets its own circuit
// breaker so a dead SMTP server does not slow every notification.
func WithChannel(ch Channel, opts ...circuit.Option) Option {
	return func(s *Service) {
		if ch == nil {
			return
		}
		s.channels = append(s.channels, guardedChannel{
			Channel: ch,
			breaker: circuit.New(ch.Name(), opts...),
		})
	}
}

func New(store Store, users UserLookup, opts ...Option) *Service {
	s := &Service{store: store, users: users}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Notify stores the notification and delivers it on every channel
// concurrently. Channel failures are logged and never fail the call.
func (s *Service) Notify(ctx context.Context, req models.Request) (*models.Notification, error) {
	user, err := s.users.FindByID(ctx, req.CompanyID, req.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeValidation, "recipient does not belong to the company")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	n, err := models.NewNotification(id.NewNotificationID(), req.CompanyID, req.UserID, req.Kind, req.Title, req.Body, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return nil, err
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store notification")
	}
	if s.metrics != nil {
		s.metrics.IncrementCreated(string(n.Kind))
	}
	s.deliver(ctx, user, n)
	return n, nil
}

func (s *Service) deliver(ctx context.Context, user *tenantmodels.User, n *models.Notification) {
	if len(s.channels) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	var g errgroup.Group
	for _, ch := range s.channels {
		g.Go(func() error {
			s.deliverOne(ctx, ch, user, n)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) deliverOne(ctx context.Context, ch guardedChannel, user *tenantmodels.User, n *models.Notification) {
	if !ch.breaker.Allow() {
		s.observe(ch.Name(), "skipped")
		return
	}
	err := ch.Deliver(ctx, user, n)
	switch {
	case errors.Is(err, channel.ErrNoAddress):
		s.observe(ch.Name(), "skipped")
	case err != nil:
		_, change := ch.breaker.RecordFailure()
		s.observe(ch.Name(), "failed")
		s.logger.WarnContext(ctx, "notification delivery failed",
			"channel", ch.Name(),
			"notification_id", n.ID,
			"user_id", user.ID,
			"error", err,
		)
		if change.Opened {
			s.logger.ErrorContext(ctx, "notification channel disabled after repeated failures", "channel", ch.Name())
		}
	default:
		if _, change := ch.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "notification channel recovered", "channel", ch.Name())
		}
		s.observe(ch.Name(), "sent")
	}
}

func (s *Service) observe(name, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementDelivery(name, outcome)
	}
}

func (s *Service) List(ctx context.Context, userID id.UserID, filter models.ListFilter) ([]*models.Notification, error) {
	out, err := s.store.List(ctx, userID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	if out == nil {
		out = []*models.Notification{}
	}
	return out, nil
}

// MarkRead marks one of the caller's notifications read. Marking twice is a
// no-op.
func (s *Service) MarkRead(ctx context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error) {
	n, err := s.store.FindByID(ctx, userID, notificationID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if !n.MarkRead(requestcontext.Now(ctx)) {
		return n, nil
	}
	if err := s.store.MarkRead(ctx, n); err != nil {
		return nil, wrapNotFound(err)
	}
	return n, nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "notification not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "notification store failure")
}
