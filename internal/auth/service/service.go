// Package service authenticates staff users and issues API access tokens.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tenantmodels "crmhub/internal/tenant/models"
	"crmhub/internal/tenant/secrets"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/requestcontext"
)

type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*tenantmodels.User, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, companyID id.CompanyID, role string, expiresIn time.Duration) (string, time.Time, error)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	ExpiresAt   time.Time          `json:"expires_at"`
	User        *tenantmodels.User `json:"user"`
}

type Service struct {
	users    UserFinder
	tokens   TokenIssuer
	tokenTTL time.Duration
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(users UserFinder, tokens TokenIssuer, tokenTTL time.Duration, opts ...Option) *Service {
	s := &Service{users: users, tokens: tokens, tokenTTL: tokenTTL, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login exchanges e-mail and password for an access token. Unknown e-mail and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.rejected(ctx, email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if err := secrets.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, s.rejected(ctx, email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(user.ID, user.CompanyID, string(user.Role), s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID,
		"company_id", user.CompanyID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &LoginResult{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) rejected(ctx context.Context, email string) error {
	s.logger.WarnContext(ctx, "login rejected",
		"email", email,
		"client_ip", requestcontext.ClientIP(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
}
