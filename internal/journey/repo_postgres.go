package journey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"outreach-platform/pkg/utils"
)

// PostgresRepo implements Repository.
//
// Concurrency notes:
//   - the one-live-enrollment invariant is a partial unique index on
//     lead_journeys (lead_id, journey_id) WHERE status IN ('active','paused');
//   - ClaimDue uses FOR UPDATE SKIP LOCKED so concurrent dispatcher ticks
//     never claim the same execution.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const journeyColumns = `
id, tenant_id, name, is_active, repeat_days, trigger_criteria, created_at, updated_at
`

const stepColumns = `
id, journey_id, step_order, action_type, action_config, delay_type, delay_config, conditions, is_exit_point, is_day_end
`

const leadJourneyColumns = `
id, tenant_id, lead_id, journey_id, status, current_step_id,
started_at, completed_at, next_execution_time, last_execution_time,
context_data, last_error
`

const executionColumns = `
id, lead_journey_id, step_id, scheduled_time, status, attempts, last_attempt, result, error_message
`

func (r *PostgresRepo) CreateJourney(ctx context.Context, j Journey) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		criteria, err := json.Marshal(j.TriggerCriteria)
		if err != nil {
			return err
		}
		const q = `
INSERT INTO journeys (` + journeyColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
		if _, err := tx.ExecContext(ctx, q,
			j.ID, j.TenantID, j.Name, j.IsActive, j.RepeatDays, criteria, j.CreatedAt, j.UpdatedAt,
		); err != nil {
			return err
		}

		const sq = `
INSERT INTO journey_steps (` + stepColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
		for _, s := range j.Steps {
			action, err := json.Marshal(s.ActionConfig)
			if err != nil {
				return err
			}
			delay, err := json.Marshal(s.DelayConfig)
			if err != nil {
				return err
			}
			conds, err := json.Marshal(s.Conditions)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, sq,
				s.ID, j.ID, s.StepOrder, s.ActionType, action, s.DelayType, delay, conds, s.IsExitPoint, s.IsDayEnd,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) GetJourney(ctx context.Context, tenantID, id string) (Journey, error) {
	if tenantID == "" || id == "" {
		return Journey{}, ErrInvalidArgument
	}
	const q = `
SELECT ` + journeyColumns + `
FROM journeys
WHERE tenant_id = $1 AND id = $2
`
	j, err := scanJourney(r.db.QueryRowContext(ctx, q, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Journey{}, ErrNotFound
		}
		return Journey{}, err
	}
	steps, err := r.listSteps(ctx, j.ID)
	if err != nil {
		return Journey{}, err
	}
	j.Steps = steps
	return j, nil
}

func (r *PostgresRepo) ListJourneys(ctx context.Context, tenantID string) ([]Journey, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + journeyColumns + `
FROM journeys
WHERE tenant_id = $1
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJourneys(rows)
}

func (r *PostgresRepo) ListActiveAutoEnroll(ctx context.Context) ([]Journey, error) {
	const q = `
SELECT ` + journeyColumns + `
FROM journeys
WHERE is_active AND (trigger_criteria->>'auto_enroll')::bool
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := collectJourneys(rows)
	if err != nil {
		return nil, err
	}
	for i := range out {
		steps, err := r.listSteps(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Steps = steps
	}
	return out, nil
}

func (r *PostgresRepo) SetJourneyActive(ctx context.Context, tenantID, id string, active bool) error {
	const q = `
UPDATE journeys
SET is_active = $3, updated_at = now()
WHERE tenant_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, tenantID, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) DeleteJourney(ctx context.Context, tenantID, id string) error {
	// journey_steps rows cascade via FK.
	const q = `
DELETE FROM journeys
WHERE tenant_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, tenantID, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) CreateEnrollment(ctx context.Context, lj LeadJourney, first Execution) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		contextData, err := json.Marshal(lj.ContextData)
		if err != nil {
			return err
		}
		const q = `
INSERT INTO lead_journeys (` + leadJourneyColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
		if _, err := tx.ExecContext(ctx, q,
			lj.ID, lj.TenantID, lj.LeadID, lj.JourneyID, lj.Status, nullString(lj.CurrentStepID),
			lj.StartedAt, lj.CompletedAt, lj.NextExecutionTime, lj.LastExecutionTime,
			contextData, lj.LastError,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyEnrolled
			}
			return err
		}
		return insertExecution(ctx, tx, first)
	})
}

func (r *PostgresRepo) LatestEnrollment(ctx context.Context, tenantID, leadID, journeyID string) (LeadJourney, error) {
	const q = `
SELECT ` + leadJourneyColumns + `
FROM lead_journeys
WHERE tenant_id = $1 AND lead_id = $2 AND journey_id = $3
ORDER BY started_at DESC
LIMIT 1
`
	lj, err := scanLeadJourney(r.db.QueryRowContext(ctx, q, tenantID, leadID, journeyID))
	if errors.Is(err, sql.ErrNoRows) {
		return LeadJourney{}, ErrNotFound
	}
	return lj, err
}

func (r *PostgresRepo) GetLeadJourney(ctx context.Context, tenantID, id string) (LeadJourney, error) {
	const q = `
SELECT ` + leadJourneyColumns + `
FROM lead_journeys
WHERE tenant_id = $1 AND id = $2
`
	lj, err := scanLeadJourney(r.db.QueryRowContext(ctx, q, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return LeadJourney{}, ErrNotFound
	}
	return lj, err
}

func (r *PostgresRepo) GetLeadJourneyByID(ctx context.Context, id string) (LeadJourney, error) {
	const q = `
SELECT ` + leadJourneyColumns + `
FROM lead_journeys
WHERE id = $1
`
	lj, err := scanLeadJourney(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return LeadJourney{}, ErrNotFound
	}
	return lj, err
}

func (r *PostgresRepo) ListLeadJourneys(ctx context.Context, tenantID, journeyID string, status LeadJourneyStatus) ([]LeadJourney, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + leadJourneyColumns + `
FROM lead_journeys
WHERE tenant_id = $1
  AND ($2 = '' OR journey_id = $2)
  AND ($3 = '' OR status = $3)
ORDER BY started_at
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, journeyID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeadJourney
	for rows.Next() {
		lj, err := scanLeadJourney(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lj)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SetLeadJourneyStatus(ctx context.Context, tenantID, id string, from, to LeadJourneyStatus) error {
	// The status guard lives in the WHERE clause so pause/resume races
	// resolve to a single winner.
	const q = `
UPDATE lead_journeys
SET status = $4
WHERE tenant_id = $1 AND id = $2 AND status = $3
`
	res, err := r.db.ExecContext(ctx, q, tenantID, id, string(from), string(to))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, gerr := r.GetLeadJourney(ctx, tenantID, id); gerr != nil {
			return gerr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *PostgresRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Execution, error) {
	if limit <= 0 {
		return nil, ErrInvalidArgument
	}
	const q = `
UPDATE journey_executions
SET status = 'processing', attempts = attempts + 1, last_attempt = $1
WHERE id IN (
  SELECT id FROM journey_executions
  WHERE status = 'pending' AND scheduled_time <= $1
  ORDER BY scheduled_time
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + executionColumns + `
`
	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CompleteExecution(ctx context.Context, id, result string, at time.Time) error {
	const q = `
UPDATE journey_executions
SET status = 'completed', result = $2, last_attempt = $3
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, result, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) FailExecution(ctx context.Context, id, errMsg string, at time.Time) error {
	const q = `
UPDATE journey_executions
SET status = 'failed', error_message = $2, last_attempt = $3
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, errMsg, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) CancelExecution(ctx context.Context, id string) error {
	const q = `
UPDATE journey_executions
SET status = 'cancelled'
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) RescheduleExecution(ctx context.Context, id string, at time.Time, attempts int, errMsg string) error {
	const q = `
UPDATE journey_executions
SET status = 'pending', scheduled_time = $2, attempts = $3, error_message = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, at, attempts, errMsg)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) CancelPendingForLeadJourney(ctx context.Context, leadJourneyID string) error {
	const q = `
UPDATE journey_executions
SET status = 'cancelled'
WHERE lead_journey_id = $1 AND status = 'pending'
`
	_, err := r.db.ExecContext(ctx, q, leadJourneyID)
	return err
}

func (r *PostgresRepo) OpenExecution(ctx context.Context, leadJourneyID string) (Execution, error) {
	const q = `
SELECT ` + executionColumns + `
FROM journey_executions
WHERE lead_journey_id = $1 AND status IN ('pending', 'processing')
LIMIT 1
`
	e, err := scanExecution(r.db.QueryRowContext(ctx, q, leadJourneyID))
	if errors.Is(err, sql.ErrNoRows) {
		return Execution{}, ErrNotFound
	}
	return e, err
}

func (r *PostgresRepo) Advance(ctx context.Context, lj LeadJourney, next *Execution) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		contextData, err := json.Marshal(lj.ContextData)
		if err != nil {
			return err
		}
		const q = `
UPDATE lead_journeys
SET status = $2, current_step_id = $3, completed_at = $4,
    next_execution_time = $5, last_execution_time = $6,
    context_data = $7, last_error = $8
WHERE id = $1
`
		res, err := tx.ExecContext(ctx, q,
			lj.ID, lj.Status, nullString(lj.CurrentStepID), lj.CompletedAt,
			lj.NextExecutionTime, lj.LastExecutionTime, contextData, lj.LastError,
		)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		if next != nil {
			return insertExecution(ctx, tx, *next)
		}
		return nil
	})
}

func (r *PostgresRepo) listSteps(ctx context.Context, journeyID string) ([]Step, error) {
	const q = `
SELECT ` + stepColumns + `
FROM journey_steps
WHERE journey_id = $1
ORDER BY step_order
`
	rows, err := r.db.QueryContext(ctx, q, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var s Step
		var action, delay, conds []byte
		if err := rows.Scan(
			&s.ID, &s.JourneyID, &s.StepOrder, &s.ActionType, &action,
			&s.DelayType, &delay, &conds, &s.IsExitPoint, &s.IsDayEnd,
		); err != nil {
			return nil, err
		}
		if err := unmarshalInto(action, &s.ActionConfig, "action_config", s.ID); err != nil {
			return nil, err
		}
		if err := unmarshalInto(delay, &s.DelayConfig, "delay_config", s.ID); err != nil {
			return nil, err
		}
		if err := unmarshalInto(conds, &s.Conditions, "conditions", s.ID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func insertExecution(ctx context.Context, tx *sql.Tx, e Execution) error {
	const q = `
INSERT INTO journey_executions (` + executionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID, e.LeadJourneyID, e.StepID, e.ScheduledTime, e.Status,
		e.Attempts, e.LastAttempt, e.Result, e.ErrorMessage,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJourney(row rowScanner) (Journey, error) {
	var j Journey
	var criteria []byte
	if err := row.Scan(
		&j.ID, &j.TenantID, &j.Name, &j.IsActive, &j.RepeatDays, &criteria, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return Journey{}, err
	}
	if err := unmarshalInto(criteria, &j.TriggerCriteria, "trigger_criteria", j.ID); err != nil {
		return Journey{}, err
	}
	return j, nil
}

func scanLeadJourney(row rowScanner) (LeadJourney, error) {
	var lj LeadJourney
	var currentStep sql.NullString
	var contextData []byte
	if err := row.Scan(
		&lj.ID, &lj.TenantID, &lj.LeadID, &lj.JourneyID, &lj.Status, &currentStep,
		&lj.StartedAt, &lj.CompletedAt, &lj.NextExecutionTime, &lj.LastExecutionTime,
		&contextData, &lj.LastError,
	); err != nil {
		return LeadJourney{}, err
	}
	lj.CurrentStepID = currentStep.String
	if err := unmarshalInto(contextData, &lj.ContextData, "context_data", lj.ID); err != nil {
		return LeadJourney{}, err
	}
	return lj, nil
}

func scanExecution(row rowScanner) (Execution, error) {
	var e Execution
	err := row.Scan(
		&e.ID, &e.LeadJourneyID, &e.StepID, &e.ScheduledTime, &e.Status,
		&e.Attempts, &e.LastAttempt, &e.Result, &e.ErrorMessage,
	)
	return e, err
}

func collectJourneys(rows *sql.Rows) ([]Journey, error) {
	var out []Journey
	for rows.Next() {
		j, err := scanJourney(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func unmarshalInto(buf []byte, dst any, col, id string) error {
	if len(buf) == 0 {
		return nil
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		return fmt.Errorf("journey: bad %s payload for %s: %w", col, id, err)
	}
	return nil
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

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
