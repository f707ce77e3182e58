package journey

import (
	"context"
	"time"
)

// Repository is the persistence contract for journeys, lead journeys and
// executions. Postgres is the production implementation; the memory
// implementation backs tests.
type Repository interface {
	// Journeys.
	CreateJourney(ctx context.Context, j Journey) error
	// GetJourney returns the journey with steps ordered by step_order.
	GetJourney(ctx context.Context, tenantID, id string) (Journey, error)
	ListJourneys(ctx context.Context, tenantID string) ([]Journey, error)
	// ListActiveAutoEnroll returns active auto-enroll journeys across all
	// tenants, steps included. Used by the enrollment sweep.
	ListActiveAutoEnroll(ctx context.Context) ([]Journey, error)
	SetJourneyActive(ctx context.Context, tenantID, id string, active bool) error
	DeleteJourney(ctx context.Context, tenantID, id string) error

	// Enrollment. CreateEnrollment inserts the lead journey and its first
	// pending execution atomically; returns ErrAlreadyEnrolled when the
	// lead already has a live enrollment in the journey.
	CreateEnrollment(ctx context.Context, lj LeadJourney, first Execution) error
	// LatestEnrollment returns the most recent enrollment of a lead in a
	// journey regardless of status, or ErrNotFound. Drives repeat gating
	// in the sweep.
	LatestEnrollment(ctx context.Context, tenantID, leadID, journeyID string) (LeadJourney, error)
	GetLeadJourney(ctx context.Context, tenantID, id string) (LeadJourney, error)
	GetLeadJourneyByID(ctx context.Context, id string) (LeadJourney, error)
	ListLeadJourneys(ctx context.Context, tenantID, journeyID string, status LeadJourneyStatus) ([]LeadJourney, error)
	// SetLeadJourneyStatus transitions active<->paused; returns
	// ErrInvalidTransition for terminal rows.
	SetLeadJourneyStatus(ctx context.Context, tenantID, id string, from, to LeadJourneyStatus) error

	// Dispatch. ClaimDue atomically flips up to limit due pending
	// executions to processing and returns them; two concurrent callers
	// never receive the same execution.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Execution, error)
	CompleteExecution(ctx context.Context, id, result string, at time.Time) error
	FailExecution(ctx context.Context, id, errMsg string, at time.Time) error
	CancelExecution(ctx context.Context, id string) error
	// RescheduleExecution returns a processing execution to pending with a
	// new due time and attempt count.
	RescheduleExecution(ctx context.Context, id string, at time.Time, attempts int, errMsg string) error
	// CancelPendingForLeadJourney cancels any pending executions of a lead
	// journey; used by pause.
	CancelPendingForLeadJourney(ctx context.Context, leadJourneyID string) error
	// OpenExecution returns the lead journey's pending or processing
	// execution, or ErrNotFound. Resume uses it to avoid scheduling a
	// second execution next to one that survived the pause.
	OpenExecution(ctx context.Context, leadJourneyID string) (Execution, error)

	// Advance persists a dispatch outcome: the updated lead journey row
	// and, when next is non-nil, the next pending execution, atomically.
	Advance(ctx context.Context, lj LeadJourney, next *Execution) error
}
