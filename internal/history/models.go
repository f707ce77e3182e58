package history

import "time"

// Event is one entry in a lead journey's execution history.
//
// The history is modeled as an append-only event log rather than an
// array column rewritten in place: concurrent dispatcher ticks may write
// for different executions of the same tenant, and audit rows must never
// be lost to a read-modify-write race.
type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	LeadJourneyID string `json:"lead_journey_id" db:"lead_journey_id"`
	ExecutionID   string `json:"execution_id" db:"execution_id"`
	StepID        string `json:"step_id" db:"step_id"`

	ActionType string `json:"action_type" db:"action_type"`

	// Outcome is the executor's outcome string ("completed", "applied", ...)
	// or a dispatcher disposition ("failed", "cancelled").
	Outcome string `json:"outcome" db:"outcome"`

	// Detail is optional JSON for dashboard display (error text, executor data).
	Detail string `json:"detail,omitempty" db:"detail"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
