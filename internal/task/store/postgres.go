package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"crmhub/internal/task/models"
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

const taskColumns = `id, company_id, title, contact_id, deal_id, assignee_id, due_at, done, created_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Task) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.CompanyID, t.Title, t.ContactID, t.DealID, t.AssigneeID, t.DueAt, t.Done, t.CreatedAt, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, t *models.Task) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE tasks SET title = $3, assignee_id = $4, due_at = $5, done = $6, completed_at = $7
		WHERE id = $1 AND company_id = $2
	`, t.ID, t.CompanyID, t.Title, t.AssigneeID, t.DueAt, t.Done, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, companyID id.CompanyID, taskID id.TaskID) (*models.Task, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE company_id = $1 AND id = $2`, companyID, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Task, error) {
	conds := []string{"company_id = $1"}
	args := []any{companyID}
	if !filter.AssigneeID.IsNil() {
		args = append(args, filter.AssigneeID)
		conds = append(conds, fmt.Sprintf("assignee_id = $%d", len(args)))
	}
	if filter.OpenOnly {
		conds = append(conds, "NOT done")
	}
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE `+
		strings.Join(conds, " AND ")+` ORDER BY done, due_at NULLS LAST, created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t                  models.Task
		dueAt, completedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.CompanyID, &t.Title, &t.ContactID, &t.DealID, &t.AssigneeID,
		&dueAt, &t.Done, &t.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	if dueAt.Valid {
		v := dueAt.Time
		t.DueAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	return &t, nil
}
