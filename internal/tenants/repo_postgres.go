package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const settingsColumns = `
tenant_id, timezone, dial_enabled, speed, min_agents_available, max_concurrent_calls,
routing_group, transfer_number, did_strategy, dial_order, business_hours, updated_at
`

func (r *PostgresRepo) Get(ctx context.Context, tenantID string) (Settings, error) {
	const q = `
SELECT ` + settingsColumns + `
FROM tenant_dial_settings
WHERE tenant_id = $1
`
	s, err := scanSettings(r.db.QueryRowContext(ctx, q, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	return s, err
}

func (r *PostgresRepo) Upsert(ctx context.Context, s Settings) error {
	hours, err := json.Marshal(s.BusinessHours)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO tenant_dial_settings (` + settingsColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
ON CONFLICT (tenant_id) DO UPDATE SET
  timezone = EXCLUDED.timezone,
  dial_enabled = EXCLUDED.dial_enabled,
  speed = EXCLUDED.speed,
  min_agents_available = EXCLUDED.min_agents_available,
  max_concurrent_calls = EXCLUDED.max_concurrent_calls,
  routing_group = EXCLUDED.routing_group,
  transfer_number = EXCLUDED.transfer_number,
  did_strategy = EXCLUDED.did_strategy,
  dial_order = EXCLUDED.dial_order,
  business_hours = EXCLUDED.business_hours,
  updated_at = now()
`
	_, err = r.db.ExecContext(ctx, q,
		s.TenantID, s.Timezone, s.DialEnabled, s.Speed, s.MinAgentsAvailable, s.MaxConcurrentCalls,
		s.RoutingGroup, s.TransferNumber, s.DIDStrategy, s.DialOrder, hours,
	)
	return err
}

func (r *PostgresRepo) ListDialEnabled(ctx context.Context) ([]Settings, error) {
	const q = `
SELECT ` + settingsColumns + `
FROM tenant_dial_settings
WHERE dial_enabled
ORDER BY tenant_id
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Settings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettings(row rowScanner) (Settings, error) {
	var s Settings
	var hours []byte
	if err := row.Scan(
		&s.TenantID, &s.Timezone, &s.DialEnabled, &s.Speed, &s.MinAgentsAvailable, &s.MaxConcurrentCalls,
		&s.RoutingGroup, &s.TransferNumber, &s.DIDStrategy, &s.DialOrder, &hours, &s.UpdatedAt,
	); err != nil {
		return Settings{}, err
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &s.BusinessHours); err != nil {
			return Settings{}, fmt.Errorf("tenants: bad business_hours payload for %s: %w", s.TenantID, err)
		}
	}
	return s, nil
}
