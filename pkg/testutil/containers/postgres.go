//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"crmhub/internal/platform/config"
	"crmhub/internal/platform/logger"
	"crmhub/internal/platform/postgres"
	id "crmhub/pkg/domain"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance with the
// schema already migrated.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

// NewPostgresContainer starts PostgreSQL and applies the embedded migrations.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("crmhub"),
		tcpostgres.WithUsername("crmhub"),
		tcpostgres.WithPassword("crmhub"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	if err := postgres.Migrate(logger.Discard(), url); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to migrate postgres: %v", err)
	}

	db, err := postgres.Open(ctx, config.DatabaseConfig{URL: url, MaxOpenConns: 10})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		URL:       url,
		DB:        db,
	}
}

// TruncateTables empties the named tables and everything referencing them.
// Use between tests to ensure isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE %s CASCADE", strings.Join(tables, ", ")))
	return err
}

// SeedCompany inserts a company with one staff user so rows referencing both
// satisfy their foreign keys.
func (p *PostgresContainer) SeedCompany(ctx context.Context, name string) (id.CompanyID, id.UserID, error) {
	companyID, userID := id.NewCompanyID(), id.NewUserID()
	now := time.Now().UTC()
	if _, err := p.DB.ExecContext(ctx, `
		INSERT INTO companies (id, name, status, created_at, updated_at) VALUES ($1, $2, 'active', $3, $3)
	`, companyID, name, now); err != nil {
		return companyID, userID, fmt.Errorf("seed company: %w", err)
	}
	if _, err := p.DB.ExecContext(ctx, `
		INSERT INTO users (id, company_id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, 'Seed Owner', 'x', 'owner', $4)
	`, userID, companyID, strings.ToLower(name)+"-"+userID.String()[:8]+"@seed.test", now); err != nil {
		return companyID, userID, fmt.Errorf("seed user: %w", err)
	}
	return companyID, userID, nil
}
