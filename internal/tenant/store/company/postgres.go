package company

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crmhub/internal/platform/postgres"
	"crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/platform/tx"
)

// PostgresStore persists companies in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, company *models.Company) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO companies (id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, company.ID, company.Name, company.Status, company.CreatedAt, company.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, companyID id.CompanyID) (*models.Company, error) {
	var c models.Company
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM companies WHERE id = $1
	`, companyID).Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find company: %w", err)
	}
	return &c, nil
}
