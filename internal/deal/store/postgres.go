package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"crmhub/internal/deal/models"
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

const dealColumns = `id, company_id, contact_id, pipeline_id, stage, title, amount, currency,
	status, source, responsible_user_id, created_at, updated_at, closed_at`

// Create inserts d. A second open deal for the same contact and lead source
// is skipped by ON CONFLICT rather than raised, so the caller's transaction
// stays usable and it can read the deal that won.
func (s *PostgresStore) Create(ctx context.Context, d *models.Deal) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO deals (`+dealColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (company_id, contact_id, source) WHERE `+openLeadPredicate+` DO NOTHING
	`, d.ID, d.CompanyID, d.ContactID, d.PipelineID, d.Stage, d.Title, d.Amount, d.Currency,
		string(d.Status), d.Source, d.ResponsibleUserID, d.CreatedAt, d.UpdatedAt, d.ClosedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert deal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

// openLeadPredicate matches the deals_open_lead_idx partial index.
const openLeadPredicate = `status = 'open' AND source NOT IN ('', 'manual')`

func (s *PostgresStore) Update(ctx context.Context, d *models.Deal) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE deals SET contact_id = $3, pipeline_id = $4, stage = $5, title = $6, amount = $7,
			currency = $8, status = $9, source = $10, responsible_user_id = $11, updated_at = $12, closed_at = $13
		WHERE id = $1 AND company_id = $2
	`, d.ID, d.CompanyID, d.ContactID, d.PipelineID, d.Stage, d.Title, d.Amount,
		d.Currency, string(d.Status), d.Source, d.ResponsibleUserID, d.UpdatedAt, d.ClosedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update deal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, companyID id.CompanyID, dealID id.DealID) (*models.Deal, error) {
	return s.findOne(ctx, `WHERE company_id = $1 AND id = $2`, companyID, dealID)
}

func (s *PostgresStore) FindOpenByContactSource(ctx context.Context, companyID id.CompanyID, contactID id.ContactID, source string) (*models.Deal, error) {
	return s.findOne(ctx, `WHERE company_id = $1 AND contact_id = $2 AND source = $3 AND status = 'open'
		ORDER BY created_at LIMIT 1`, companyID, contactID, source)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*models.Deal, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals `+where, args...)
	d, err := scanDeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find deal: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Deal, error) {
	conds := []string{"company_id = $1"}
	args := []any{companyID}
	if !filter.PipelineID.IsNil() {
		args = append(args, filter.PipelineID)
		conds = append(conds, fmt.Sprintf("pipeline_id = $%d", len(args)))
	}
	if !filter.ContactID.IsNil() {
		args = append(args, filter.ContactID)
		conds = append(conds, fmt.Sprintf("contact_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE `+strings.Join(conds, " AND ")+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	deals := []*models.Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deals: %w", err)
	}
	return deals, nil
}

func (s *PostgresStore) Delete(ctx context.Context, companyID id.CompanyID, dealID id.DealID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM deals WHERE company_id = $1 AND id = $2`, companyID, dealID)
	if err != nil {
		return fmt.Errorf("delete deal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountOpenByPipeline(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (int, error) {
	var n int
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals WHERE company_id = $1 AND pipeline_id = $2 AND status = 'open'`,
		companyID, pipelineID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open deals: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountOpenByStage(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID, stage string) (int, error) {
	var n int
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals WHERE company_id = $1 AND pipeline_id = $2 AND stage = $3 AND status = 'open'`,
		companyID, pipelineID, stage).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open deals: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (*models.Deal, error) {
	var (
		d        models.Deal
		status   string
		closedAt sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.CompanyID, &d.ContactID, &d.PipelineID, &d.Stage, &d.Title, &d.Amount,
		&d.Currency, &status, &d.Source, &d.ResponsibleUserID, &d.CreatedAt, &d.UpdatedAt, &closedAt); err != nil {
		return nil, err
	}
	d.Status = models.Status(status)
	if closedAt.Valid {
		t := closedAt.Time
		d.ClosedAt = &t
	}
	return &d, nil
}
