package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for history events.
// The log is append-only; there are no update or delete operations.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByLeadJourney(ctx context.Context, tenantID, leadJourneyID string) ([]Event, error)
}

// Service records journey execution history.
//
// Callers should treat history logging as best-effort relative to the
// execution state machine: a failed append must not abort a dispatch tick.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("history: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("history: repository not configured")
	}
	if e.TenantID == "" || e.LeadJourneyID == "" {
		return ErrInvalidEvent
	}
	if e.Outcome == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// ListByLeadJourney returns a lead journey's history, oldest first.
func (s *Service) ListByLeadJourney(ctx context.Context, tenantID, leadJourneyID string) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("history: repository not configured")
	}
	if tenantID == "" || leadJourneyID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByLeadJourney(ctx, tenantID, leadJourneyID)
}
