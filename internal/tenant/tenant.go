// Package tenant owns companies and their staff users.
package tenant

import (
	"log/slog"

	"crmhub/internal/tenant/handler"
	"crmhub/internal/tenant/service"
)

type Service = service.Service

type Handler = handler.Handler

// NewService constructs the tenant service with required dependencies.
func NewService(companies service.CompanyStore, users service.UserStore, opts ...service.Option) *Service {
	return service.New(companies, users, opts...)
}

// NewHandler constructs the HTTP handler for admin and staff routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
