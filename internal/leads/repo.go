package leads

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("leads: not found")
	ErrInvalidArgument = errors.New("leads: invalid argument")
)

// Repository is the narrow persistence contract this platform needs from the
// CRM's lead store.
//
// Rules:
// - Every method enforces tenant filtering.
// - Counter increments MUST be atomic in storage (SET n = n + 1), never
//   read-modify-write; concurrent pacer ticks would otherwise undercount.
type Repository interface {
	Get(ctx context.Context, tenantID, leadID string) (Lead, error)

	// ListCandidates returns leads matching the indexable criteria subset.
	ListCandidates(ctx context.Context, tenantID string, f CandidateFilter) ([]Lead, error)

	// ListDialable returns up to limit auto-dialer leads in status pending
	// whose last attempt is absent or before cutoff, in the given order.
	ListDialable(ctx context.Context, tenantID string, cutoff time.Time, order DialOrder, limit int) ([]Lead, error)

	UpdateStatus(ctx context.Context, tenantID, leadID string, status LeadStatus) error
	AddTags(ctx context.Context, tenantID, leadID string, tags []string) error

	// IncrementAttempts bumps the attempt counter and stamps last_attempt_at.
	IncrementAttempts(ctx context.Context, tenantID, leadID string, at time.Time) error
}
