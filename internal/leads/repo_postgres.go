package leads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresRepo implements Repository against the CRM's leads table.
//
// NOTE: the table is owned by the CRM subsystem; this repo only touches the
// columns listed in the Repository contract. Tags and assignments are JSONB.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const leadColumns = `
id, tenant_id, phone, email, status, tags, brand, source, assignments,
attempt_count, last_attempt_at, created_at, updated_at
`

func (r *PostgresRepo) Get(ctx context.Context, tenantID, leadID string) (Lead, error) {
	if tenantID == "" || leadID == "" {
		return Lead{}, ErrInvalidArgument
	}
	const q = `
SELECT ` + leadColumns + `
FROM leads
WHERE tenant_id = $1 AND id = $2
`
	l, err := scanLead(r.db.QueryRowContext(ctx, q, tenantID, leadID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

func (r *PostgresRepo) ListCandidates(ctx context.Context, tenantID string, f CandidateFilter) ([]Lead, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + leadColumns + `
FROM leads
WHERE tenant_id = $1
  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
  AND (cardinality($3::text[]) = 0 OR brand = ANY($3))
  AND (cardinality($4::text[]) = 0 OR source = ANY($4))
ORDER BY created_at
LIMIT $5
`
	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, q, tenantID, statusStrings(f.Statuses), emptyIfNil(f.Brands), emptyIfNil(f.Sources), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (r *PostgresRepo) ListDialable(ctx context.Context, tenantID string, cutoff time.Time, order DialOrder, limit int) ([]Lead, error) {
	if tenantID == "" || limit <= 0 {
		return nil, ErrInvalidArgument
	}

	orderBy := "created_at"
	if order == DialOrderFewestAttempts {
		orderBy = "attempt_count, created_at"
	}
	q := fmt.Sprintf(`
SELECT `+leadColumns+`
FROM leads
WHERE tenant_id = $1
  AND status = 'pending'
  AND assignments @> '["auto_dialer"]'
  AND (last_attempt_at IS NULL OR last_attempt_at < $2)
ORDER BY %s
LIMIT $3
`, orderBy)

	rows, err := r.db.QueryContext(ctx, q, tenantID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, tenantID, leadID string, status LeadStatus) error {
	const q = `
UPDATE leads
SET status = $3, updated_at = now()
WHERE tenant_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, tenantID, leadID, string(status))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) AddTags(ctx context.Context, tenantID, leadID string, tags []string) error {
	// Set-union in SQL so concurrent writers cannot drop each other's tags.
	const q = `
UPDATE leads
SET tags = (
  SELECT jsonb_agg(DISTINCT t)
  FROM jsonb_array_elements_text(tags || $3::jsonb) AS t
), updated_at = now()
WHERE tenant_id = $1 AND id = $2
`
	buf, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, tenantID, leadID, string(buf))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) IncrementAttempts(ctx context.Context, tenantID, leadID string, at time.Time) error {
	// Atomic increment; never read-modify-write.
	const q = `
UPDATE leads
SET attempt_count = attempt_count + 1, last_attempt_at = $3, updated_at = now()
WHERE tenant_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, tenantID, leadID, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (Lead, error) {
	var l Lead
	var tags, assignments []byte
	if err := row.Scan(
		&l.ID,
		&l.TenantID,
		&l.Phone,
		&l.Email,
		&l.Status,
		&tags,
		&l.Brand,
		&l.Source,
		&assignments,
		&l.AttemptCount,
		&l.LastAttemptAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return Lead{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &l.Tags); err != nil {
			return Lead{}, fmt.Errorf("leads: bad tags payload for %s: %w", l.ID, err)
		}
	}
	if len(assignments) > 0 {
		if err := json.Unmarshal(assignments, &l.Assignments); err != nil {
			return Lead{}, fmt.Errorf("leads: bad assignments payload for %s: %w", l.ID, err)
		}
	}
	return l, nil
}

func collectLeads(rows *sql.Rows) ([]Lead, error) {
	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func statusStrings(in []LeadStatus) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
