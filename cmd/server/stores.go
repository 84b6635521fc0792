package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	automationservice "crmhub/internal/automation/service"
	automationstore "crmhub/internal/automation/store"
	contactservice "crmhub/internal/contact/service"
	contactstore "crmhub/internal/contact/store"
	dealservice "crmhub/internal/deal/service"
	dealstore "crmhub/internal/deal/store"
	"crmhub/internal/events"
	"crmhub/internal/events/outbox"
	"crmhub/internal/events/relay"
	integrationservice "crmhub/internal/integration/service"
	integrationstore "crmhub/internal/integration/store"
	"crmhub/internal/leads/reconcile"
	notifyservice "crmhub/internal/notify/service"
	notifystore "crmhub/internal/notify/store"
	pipelineservice "crmhub/internal/pipeline/service"
	pipelinestore "crmhub/internal/pipeline/store"
	"crmhub/internal/platform/config"
	"crmhub/internal/platform/postgres"
	taskservice "crmhub/internal/task/service"
	taskstore "crmhub/internal/task/store"
	tenantservice "crmhub/internal/tenant/service"
	companystore "crmhub/internal/tenant/store/company"
	userstore "crmhub/internal/tenant/store/user"
	"crmhub/pkg/platform/tx"
)

type contactStore interface {
	contactservice.Store
	reconcile.Contacts
}

type dealStore interface {
	dealservice.Store
	reconcile.Deals
	pipelineservice.OpenDealCounter
}

type outboxStore interface {
	events.Store
	relay.Store
}

// stores holds one implementation per bounded context, all backed either by
// PostgreSQL or by process memory.
type stores struct {
	db *sql.DB
	tx tx.Runner

	companies    tenantservice.CompanyStore
	users        tenantservice.UserStore
	pipelines    pipelineservice.Store
	contacts     contactStore
	deals        dealStore
	tasks        taskservice.Store
	integrations integrationservice.Store
	rules        automationservice.Store
	notes        notifyservice.Store
	outbox       outboxStore
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*stores, error) {
	if cfg.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		return &stores{
			tx:           tx.NewMemoryRunner(),
			companies:    companystore.NewInMemory(),
			users:        userstore.NewInMemory(),
			pipelines:    pipelinestore.NewInMemory(),
			contacts:     contactstore.NewInMemory(),
			deals:        dealstore.NewInMemory(),
			tasks:        taskstore.NewInMemory(),
			integrations: integrationstore.NewInMemory(),
			rules:        automationstore.NewInMemory(),
			notes:        notifystore.NewInMemory(),
			outbox:       outbox.NewInMemory(),
		}, nil
	}

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(logger, cfg.URL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres", "max_open_conns", cfg.MaxOpenConns)

	return &stores{
		db:           db,
		tx:           tx.NewSQLRunner(db),
		companies:    companystore.NewPostgres(db),
		users:        userstore.NewPostgres(db),
		pipelines:    pipelinestore.NewPostgres(db),
		contacts:     contactstore.NewPostgres(db),
		deals:        dealstore.NewPostgres(db),
		tasks:        taskstore.NewPostgres(db),
		integrations: integrationstore.NewPostgres(db),
		rules:        automationstore.NewPostgres(db),
		notes:        notifystore.NewPostgres(db),
		outbox:       outbox.NewPostgres(db),
	}, nil
}

func (s *stores) health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
