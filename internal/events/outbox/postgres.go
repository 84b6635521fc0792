package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"crmhub/internal/events"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/tx"
)

// PostgresStore writes events into the outbox table. Append joins the
// caller's transaction when one is carried in the context, so events commit
// or roll back together with the rows that produced them.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, evts ...*events.Event) error {
	exec := tx.Exec(ctx, s.db)
	for _, e := range evts {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO outbox (id, company_id, event_type, aggregate_id, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.ID, e.CompanyID, string(e.Type), e.AggregateID, []byte(e.Payload), e.OccurredAt)
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) FetchUnpublished(ctx context.Context, limit int) ([]*events.Event, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, company_id, event_type, aggregate_id, payload, occurred_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY occurred_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []*events.Event
	for rows.Next() {
		var (
			e       events.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.CompanyID, &typ, &e.AggregateID, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Type = events.Type(typ)
		e.Payload = payload
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []id.EventID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, eventID := range ids {
		raw[i] = eventID.String()
	}
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE outbox SET published_at = $2
		WHERE id = ANY($1::uuid[]) AND published_at IS NULL
	`, pq.Array(raw), at)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
