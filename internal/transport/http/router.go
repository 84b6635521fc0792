// Package httptransport assembles the HTTP surface: shared middleware, the
// public inbound lead routes, the authenticated CRM API and the admin routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crmhub/pkg/platform/httputil"
	adminmw "crmhub/pkg/platform/middleware/admin"
	authmw "crmhub/pkg/platform/middleware/auth"
	"crmhub/pkg/platform/middleware/metadata"
	request "crmhub/pkg/platform/middleware/request"
	"crmhub/pkg/platform/middleware/requesttime"
)

// Registrar mounts a bounded context's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

const healthTimeout = 2 * time.Second

// Config collects everything the router mounts.
type Config struct {
	Logger         *slog.Logger
	Latency        request.LatencyObserver
	Gatherer       prometheus.Gatherer
	Tokens         authmw.JWTValidator
	AdminToken     string
	RequestTimeout time.Duration
	Checks         map[string]HealthCheck
	// Proxies may set the forwarding headers the client IP is read from.
	Proxies metadata.Proxies

	// Public routes need no bearer token. AuthLimit guards them when set.
	Public    []Registrar
	AuthLimit func(http.Handler) http.Handler
	// Inbound routes receive provider callbacks and public form posts,
	// addressed by integration token.
	Inbound      []Registrar
	InboundLimit func(http.Handler) http.Handler
	// API routes live under /api behind bearer authentication.
	API []Registrar
	// Admin routes sit behind X-Admin-Token and register their own /admin
	// paths. They are not mounted when AdminToken is empty.
	Admin []func(r chi.Router)
}

// NewRouter wires all routes onto a chi mux.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(cfg.Proxies))
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	if cfg.Latency != nil {
		r.Use(request.Latency(cfg.Latency))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(request.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", healthHandler(cfg.Checks, logger))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	mountGroup(r, cfg.AuthLimit, cfg.Public)
	mountGroup(r, cfg.InboundLimit, cfg.Inbound)

	r.Route("/api", func(api chi.Router) {
		api.Use(authmw.RequireAuth(cfg.Tokens, logger))
		for _, reg := range cfg.API {
			reg.Register(api)
		}
	})

	if cfg.AdminToken != "" && len(cfg.Admin) > 0 {
		r.Group(func(admin chi.Router) {
			admin.Use(adminmw.RequireAdminToken(cfg.AdminToken, logger))
			for _, mount := range cfg.Admin {
				mount(admin)
			}
		})
	}

	return r
}

func mountGroup(r chi.Router, limit func(http.Handler) http.Handler, regs []Registrar) {
	r.Group(func(g chi.Router) {
		if limit != nil {
			g.Use(limit)
		}
		for _, reg := range regs {
			reg.Register(g)
		}
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.WarnContext(ctx, "health check failed",
					"check", name,
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				resp.Status = "degraded"
				resp.Checks[name] = "down"
				continue
			}
			resp.Checks[name] = "up"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
