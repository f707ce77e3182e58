package history

import (
	"context"
	"database/sql"
)

// PostgresRepo persists history events.
//
// Table journey_history is insert-only; no UPDATE or DELETE is ever issued.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO journey_history (
  id, tenant_id, lead_journey_id, execution_id, step_id, action_type, outcome, detail, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		e.LeadJourneyID,
		e.ExecutionID,
		e.StepID,
		e.ActionType,
		e.Outcome,
		e.Detail,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByLeadJourney(ctx context.Context, tenantID, leadJourneyID string) ([]Event, error) {
	const q = `
SELECT id, tenant_id, lead_journey_id, execution_id, step_id, action_type, outcome, detail, created_at
FROM journey_history
WHERE tenant_id = $1 AND lead_journey_id = $2
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, leadJourneyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&e.LeadJourneyID,
			&e.ExecutionID,
			&e.StepID,
			&e.ActionType,
			&e.Outcome,
			&e.Detail,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
