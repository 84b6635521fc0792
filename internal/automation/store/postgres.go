package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"crmhub/internal/automation/models"
	"crmhub/internal/events"
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

const ruleColumns = `id, company_id, name, trigger, source_filter, action, params, active, created_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.Rule) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("encode rule params: %w", err)
	}
	_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO automation_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.CompanyID, r.Name, string(r.Trigger), r.SourceFilter, string(r.Action), params, r.Active, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert automation rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, companyID id.CompanyID) ([]*models.Rule, error) {
	return s.query(ctx, `SELECT `+ruleColumns+` FROM automation_rules
		WHERE company_id = $1 ORDER BY created_at`, companyID)
}

func (s *PostgresStore) ListByTrigger(ctx context.Context, companyID id.CompanyID, trigger events.Type) ([]*models.Rule, error) {
	return s.query(ctx, `SELECT `+ruleColumns+` FROM automation_rules
		WHERE company_id = $1 AND trigger = $2 AND active ORDER BY created_at`, companyID, string(trigger))
}

func (s *PostgresStore) Delete(ctx context.Context, companyID id.CompanyID, ruleID id.RuleID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM automation_rules WHERE company_id = $1 AND id = $2`, companyID, ruleID)
	if err != nil {
		return fmt.Errorf("delete automation rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Rule, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list automation rules: %w", err)
	}
	defer rows.Close()

	rules := []*models.Rule{}
	for rows.Next() {
		var (
			r               models.Rule
			trigger, action string
			params          []byte
		)
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Name, &trigger, &r.SourceFilter, &action, &params, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan automation rule: %w", err)
		}
		r.Trigger = events.Type(trigger)
		r.Action = models.Action(action)
		if err := json.Unmarshal(params, &r.Params); err != nil {
			return nil, fmt.Errorf("decode rule params: %w", err)
		}
		rules = append(rules, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate automation rules: %w", err)
	}
	return rules, nil
}
