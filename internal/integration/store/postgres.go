package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"crmhub/internal/integration/models"
	"crmhub/internal/platform/postgres"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const integrationColumns = `id, company_id, kind, name, token, secret, verify_token, settings, active, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, i *models.Integration) error {
	settings, err := json.Marshal(i.Settings)
	if err != nil {
		return fmt.Errorf("marshal integration settings: %w", err)
	}
	_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO integrations (`+integrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, i.ID, i.CompanyID, string(i.Kind), i.Name, i.Token, i.Secret, i.VerifyToken, settings,
		i.Active, i.CreatedAt, i.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert integration: %w", err)
	}
	return nil
}

// Update never touches the token.
func (s *PostgresStore) Update(ctx context.Context, i *models.Integration) error {
	settings, err := json.Marshal(i.Settings)
	if err != nil {
		return fmt.Errorf("marshal integration settings: %w", err)
	}
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE integrations SET name = $3, secret = $4, verify_token = $5, settings = $6,
			active = $7, updated_at = $8
		WHERE id = $1 AND company_id = $2
	`, i.ID, i.CompanyID, i.Name, i.Secret, i.VerifyToken, settings, i.Active, i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update integration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) (*models.Integration, error) {
	return s.findOne(ctx, `WHERE company_id = $1 AND id = $2`, companyID, integrationID)
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.Integration, error) {
	return s.findOne(ctx, `WHERE token = $1`, token)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*models.Integration, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations `+where, args...)
	i, err := scanIntegration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find integration: %w", err)
	}
	return i, nil
}

func (s *PostgresStore) List(ctx context.Context, companyID id.CompanyID) ([]*models.Integration, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE company_id = $1 ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	out := []*models.Integration{}
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integrations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM integrations WHERE company_id = $1 AND id = $2`, companyID, integrationID)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row scanner) (*models.Integration, error) {
	var (
		i        models.Integration
		kind     string
		settings []byte
	)
	if err := row.Scan(&i.ID, &i.CompanyID, &kind, &i.Name, &i.Token, &i.Secret, &i.VerifyToken,
		&settings, &i.Active, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	i.Kind = models.Kind(kind)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &i.Settings); err != nil {
			return nil, fmt.Errorf("decode integration settings: %w", err)
		}
	}
	return &i, nil
}
