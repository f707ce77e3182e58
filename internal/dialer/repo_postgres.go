package dialer

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const didColumns = `
id, tenant_id, phone, state, is_active, usage_count, last_used_at, created_at
`

const attemptColumns = `
id, tenant_id, lead_id, did_id, lead_phone, caller_id, provider_call_id, outcome, placed_at, ended_at
`

func (r *PostgresRepo) CreateDID(ctx context.Context, d DID) error {
	const q = `
INSERT INTO dids (` + didColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := r.db.ExecContext(ctx, q,
		d.ID, d.TenantID, d.Phone, d.State, d.IsActive, d.UsageCount, d.LastUsedAt, d.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListActiveDIDs(ctx context.Context, tenantID string) ([]DID, error) {
	const q = `
SELECT ` + didColumns + `
FROM dids
WHERE tenant_id = $1 AND is_active
ORDER BY created_at
`
	return r.listDIDs(ctx, q, tenantID)
}

func (r *PostgresRepo) ListDIDs(ctx context.Context, tenantID string) ([]DID, error) {
	const q = `
SELECT ` + didColumns + `
FROM dids
WHERE tenant_id = $1
ORDER BY created_at
`
	return r.listDIDs(ctx, q, tenantID)
}

func (r *PostgresRepo) SetDIDActive(ctx context.Context, tenantID, id string, active bool) error {
	const q = `
UPDATE dids
SET is_active = $3
WHERE tenant_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, tenantID, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) IncrementDIDUsage(ctx context.Context, tenantID, id string, at time.Time) error {
	// Atomic increment; concurrent pacer ticks must not lose counts.
	const q = `
UPDATE dids
SET usage_count = usage_count + 1, last_used_at = $3
WHERE tenant_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, tenantID, id, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) InsertAttempt(ctx context.Context, a CallAttempt) error {
	const q = `
INSERT INTO call_attempts (` + attemptColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.TenantID, a.LeadID, a.DIDID, a.LeadPhone, a.CallerID,
		a.ProviderCallID, a.Outcome, a.PlacedAt, a.EndedAt,
	)
	return err
}

func (r *PostgresRepo) SetAttemptOutcome(ctx context.Context, tenantID, providerCallID, outcome string, endedAt time.Time) (CallAttempt, error) {
	const q = `
UPDATE call_attempts
SET outcome = $3, ended_at = $4
WHERE tenant_id = $1 AND provider_call_id = $2
RETURNING ` + attemptColumns + `
`
	a, err := scanAttempt(r.db.QueryRowContext(ctx, q, tenantID, providerCallID, outcome, endedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return CallAttempt{}, ErrNotFound
	}
	return a, err
}

func (r *PostgresRepo) ListAttemptsByLead(ctx context.Context, tenantID, leadID string, limit int) ([]CallAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT ` + attemptColumns + `
FROM call_attempts
WHERE tenant_id = $1 AND lead_id = $2
ORDER BY placed_at DESC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) listDIDs(ctx context.Context, q, tenantID string) ([]DID, error) {
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DID
	for rows.Next() {
		var d DID
		if err := rows.Scan(
			&d.ID, &d.TenantID, &d.Phone, &d.State, &d.IsActive, &d.UsageCount, &d.LastUsedAt, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (CallAttempt, error) {
	var a CallAttempt
	err := row.Scan(
		&a.ID, &a.TenantID, &a.LeadID, &a.DIDID, &a.LeadPhone, &a.CallerID,
		&a.ProviderCallID, &a.Outcome, &a.PlacedAt, &a.EndedAt,
	)
	return a, err
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
