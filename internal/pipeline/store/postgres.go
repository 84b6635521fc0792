package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"crmhub/internal/pipeline/models"
	"crmhub/internal/platform/postgres"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/platform/tx"
)

// PostgresStore keeps stages as a JSONB array on the pipeline row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pipelineColumns = `id, company_id, name, stages, is_default, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.Pipeline) error {
	stages, err := json.Marshal(p.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO pipelines (`+pipelineColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.CompanyID, p.Name, stages, p.IsDefault, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Pipeline) error {
	stages, err := json.Marshal(p.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE pipelines SET name = $3, stages = $4, is_default = $5, updated_at = $6
		WHERE id = $1 AND company_id = $2
	`, p.ID, p.CompanyID, p.Name, stages, p.IsDefault, p.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update pipeline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// SetDefault clears the previous default before flagging pipelineID so the
// partial unique index never sees two defaults.
func (s *PostgresStore) SetDefault(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) error {
	exec := tx.Exec(ctx, s.db)
	if _, err := exec.ExecContext(ctx,
		`UPDATE pipelines SET is_default = FALSE WHERE company_id = $1 AND is_default AND id <> $2`,
		companyID, pipelineID); err != nil {
		return fmt.Errorf("clear default pipeline: %w", err)
	}
	res, err := exec.ExecContext(ctx,
		`UPDATE pipelines SET is_default = TRUE WHERE company_id = $1 AND id = $2`, companyID, pipelineID)
	if err != nil {
		return fmt.Errorf("set default pipeline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (*models.Pipeline, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE id = $1 AND company_id = $2`, pipelineID, companyID)
	return scanPipeline(row)
}

func (s *PostgresStore) FindDefault(ctx context.Context, companyID id.CompanyID) (*models.Pipeline, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE company_id = $1 AND is_default`, companyID)
	return scanPipeline(row)
}

func (s *PostgresStore) List(ctx context.Context, companyID id.CompanyID) ([]*models.Pipeline, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()
	var out []*models.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM pipelines WHERE id = $1 AND company_id = $2`, pipelineID, companyID)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPipeline(row scanner) (*models.Pipeline, error) {
	var (
		p      models.Pipeline
		stages []byte
	)
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &stages, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}
	if err := json.Unmarshal(stages, &p.Stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	return &p, nil
}
