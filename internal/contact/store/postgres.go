package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"crmhub/internal/contact/models"
	"crmhub/internal/platform/postgres"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/platform/tx"
)

// PostgresStore persists contacts. Tags are a TEXT[] column. External ids are
// kept as a JSONB object keyed by provider for reads and mirrored into
// contact_external_ids, whose primary key gives each provider id one owner.
type PostgresStore struct {
	db     *sql.DB
	runner *tx.SQLRunner
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, runner: tx.NewSQLRunner(db)}
}

const contactColumns = `id, company_id, name, email, phone, company_name, source,
	responsible_user_id, tags, external_ids, created_at, updated_at`

// Create inserts c and claims its external ids in one transaction, joining
// the caller's when there is one.
func (s *PostgresStore) Create(ctx context.Context, c *models.Contact) error {
	externalIDs, err := json.Marshal(c.ExternalIDs)
	if err != nil {
		return fmt.Errorf("encode external ids: %w", err)
	}
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
			INSERT INTO contacts (`+contactColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, c.ID, c.CompanyID, c.Name, c.Email, c.Phone, c.CompanyName, c.Source,
			c.ResponsibleUserID, pq.Array(c.Tags), externalIDs, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("insert contact: %w", err)
		}
		return s.claimExternalIDs(ctx, c)
	})
}

func (s *PostgresStore) Update(ctx context.Context, c *models.Contact) error {
	externalIDs, err := json.Marshal(c.ExternalIDs)
	if err != nil {
		return fmt.Errorf("encode external ids: %w", err)
	}
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
			UPDATE contacts SET name = $3, email = $4, phone = $5, company_name = $6, source = $7,
				responsible_user_id = $8, tags = $9, external_ids = $10, updated_at = $11
			WHERE id = $1 AND company_id = $2
		`, c.ID, c.CompanyID, c.Name, c.Email, c.Phone, c.CompanyName, c.Source,
			c.ResponsibleUserID, pq.Array(c.Tags), externalIDs, c.UpdatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("update contact: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sentinel.ErrNotFound
		}
		return s.claimExternalIDs(ctx, c)
	})
}

// claimExternalIDs syncs contact_external_ids with c. A provider id already
// owned by another contact yields ErrAlreadyUsed. The upsert reports the
// owner instead of raising, so the transaction stays usable until the caller
// rolls it back.
func (s *PostgresStore) claimExternalIDs(ctx context.Context, c *models.Contact) error {
	exec := tx.Exec(ctx, s.db)
	providers := make([]string, 0, len(c.ExternalIDs))
	values := make([]string, 0, len(c.ExternalIDs))
	for provider, externalID := range c.ExternalIDs {
		var owner id.ContactID
		err := exec.QueryRowContext(ctx, `
			INSERT INTO contact_external_ids (company_id, provider, external_id, contact_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (company_id, provider, external_id) DO UPDATE SET contact_id = contact_external_ids.contact_id
			RETURNING contact_id
		`, c.CompanyID, provider, externalID, c.ID).Scan(&owner)
		if err != nil {
			return fmt.Errorf("claim external id: %w", err)
		}
		if owner != c.ID {
			return sentinel.ErrAlreadyUsed
		}
		providers = append(providers, provider)
		values = append(values, externalID)
	}
	if _, err := exec.ExecContext(ctx, `
		DELETE FROM contact_external_ids
		WHERE contact_id = $1 AND (provider, external_id) NOT IN (
			SELECT * FROM UNNEST($2::text[], $3::text[])
		)
	`, c.ID, pq.Array(providers), pq.Array(values)); err != nil {
		return fmt.Errorf("prune external ids: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, companyID id.CompanyID, contactID id.ContactID) (*models.Contact, error) {
	return s.findOne(ctx, `WHERE company_id = $1 AND id = $2`, companyID, contactID)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, companyID id.CompanyID, email string) (*models.Contact, error) {
	return s.findOne(ctx, `WHERE company_id = $1 AND email = $2 AND email <> ''`, companyID, email)
}

func (s *PostgresStore) FindByPhone(ctx context.Context, companyID id.CompanyID, phone string) (*models.Contact, error) {
	return s.findOne(ctx, `WHERE company_id = $1 AND phone = $2 AND phone <> ''`, companyID, phone)
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, companyID id.CompanyID, provider, externalID string) (*models.Contact, error) {
	return s.findOne(ctx, `WHERE company_id = $1 AND id = (
		SELECT contact_id FROM contact_external_ids WHERE company_id = $1 AND provider = $2 AND external_id = $3
	)`, companyID, provider, externalID)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*models.Contact, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts `+where, args...)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find contact: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Contact, int, error) {
	conds := []string{"company_id = $1"}
	args := []any{companyID}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		conds = append(conds, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Search))+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(LOWER(name) LIKE $%[1]d OR email LIKE $%[1]d OR phone LIKE $%[1]d OR LOWER(company_name) LIKE $%[1]d)", n))
	}
	where := " WHERE " + strings.Join(conds, " AND ")
	exec := tx.Exec(ctx, s.db)

	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	rows, err := exec.QueryContext(ctx, fmt.Sprintf(`SELECT `+contactColumns+` FROM contacts%s
		ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*models.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, total, nil
}

func (s *PostgresStore) Delete(ctx context.Context, companyID id.CompanyID, contactID id.ContactID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM contacts WHERE company_id = $1 AND id = $2`, companyID, contactID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c           models.Contact
		tags        pq.StringArray
		externalIDs []byte
	)
	if err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.CompanyName, &c.Source,
		&c.ResponsibleUserID, &tags, &externalIDs, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Tags = []string(tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	c.ExternalIDs = map[string]string{}
	if len(externalIDs) > 0 {
		if err := json.Unmarshal(externalIDs, &c.ExternalIDs); err != nil {
			return nil, fmt.Errorf("decode external ids: %w", err)
		}
	}
	return &c, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
