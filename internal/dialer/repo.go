package dialer

import (
	"context"
	"time"
)

// Repository is the persistence contract for DIDs and call attempts.
type Repository interface {
	// DIDs.
	CreateDID(ctx context.Context, d DID) error
	ListActiveDIDs(ctx context.Context, tenantID string) ([]DID, error)
	ListDIDs(ctx context.Context, tenantID string) ([]DID, error)
	SetDIDActive(ctx context.Context, tenantID, id string, active bool) error
	// IncrementDIDUsage bumps usage_count and last_used_at atomically.
	IncrementDIDUsage(ctx context.Context, tenantID, id string, at time.Time) error

	// Call attempts.
	InsertAttempt(ctx context.Context, a CallAttempt) error
	// SetAttemptOutcome records the terminal outcome reported by the PBX,
	// keyed by provider call id.
	SetAttemptOutcome(ctx context.Context, tenantID, providerCallID, outcome string, endedAt time.Time) (CallAttempt, error)
	ListAttemptsByLead(ctx context.Context, tenantID, leadID string, limit int) ([]CallAttempt, error)
}
