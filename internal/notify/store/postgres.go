package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crmhub/internal/notify/models"
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

const notificationColumns = `id, company_id, user_id, kind, title, body, read_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, n *models.Notification) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.CompanyID, n.UserID, string(n.Kind), n.Title, n.Body, n.ReadAt, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, n *models.Notification) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE notifications SET read_at = $4
		WHERE id = $1 AND company_id = $2 AND user_id = $3
	`, n.ID, n.CompanyID, n.UserID, n.ReadAt)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 AND id = $2`, userID, notificationID)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) List(ctx context.Context, userID id.UserID, filter models.ListFilter) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if filter.UnreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`
	args := []any{userID}
	if filter.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, filter.Limit)
	}
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []*models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n      models.Notification
		kind   string
		readAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.CompanyID, &n.UserID, &kind, &n.Title, &n.Body, &readAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Kind = models.Kind(kind)
	if readAt.Valid {
		v := readAt.Time
		n.ReadAt = &v
	}
	return &n, nil
}
