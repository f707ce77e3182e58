package journey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service is the authoring and control surface used by the HTTP handlers:
// journey CRUD plus pause/resume of individual lead journeys. The runtime
// side lives in Enroller and Dispatcher.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// CreateJourney validates and persists a journey with its steps. Step
// configs are checked here so the dispatcher never meets a malformed one.
func (s *Service) CreateJourney(ctx context.Context, tenantID string, in Journey) (Journey, error) {
	if tenantID == "" {
		return Journey{}, ErrInvalidArgument
	}
	if strings.TrimSpace(in.Name) == "" {
		return Journey{}, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if err := ValidateSteps(in.Steps); err != nil {
		return Journey{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	now := s.clock().UTC()
	in.ID = uuid.NewString()
	in.TenantID = tenantID
	in.CreatedAt = now
	in.UpdatedAt = now
	for i := range in.Steps {
		in.Steps[i].ID = uuid.NewString()
		in.Steps[i].JourneyID = in.ID
	}

	if err := s.repo.CreateJourney(ctx, in); err != nil {
		return Journey{}, err
	}
	return in, nil
}

func (s *Service) GetJourney(ctx context.Context, tenantID, id string) (Journey, error) {
	return s.repo.GetJourney(ctx, tenantID, id)
}

func (s *Service) ListJourneys(ctx context.Context, tenantID string) ([]Journey, error) {
	return s.repo.ListJourneys(ctx, tenantID)
}

func (s *Service) SetJourneyActive(ctx context.Context, tenantID, id string, active bool) error {
	return s.repo.SetJourneyActive(ctx, tenantID, id, active)
}

func (s *Service) DeleteJourney(ctx context.Context, tenantID, id string) error {
	return s.repo.DeleteJourney(ctx, tenantID, id)
}

func (s *Service) GetLeadJourney(ctx context.Context, tenantID, id string) (LeadJourney, error) {
	return s.repo.GetLeadJourney(ctx, tenantID, id)
}

func (s *Service) ListLeadJourneys(ctx context.Context, tenantID, journeyID string, status LeadJourneyStatus) ([]LeadJourney, error) {
	return s.repo.ListLeadJourneys(ctx, tenantID, journeyID, status)
}

// PauseLeadJourney stops dispatch for one lead journey and cancels its
// pending execution. The current step id stays put so resume can
// reschedule from the same cursor.
func (s *Service) PauseLeadJourney(ctx context.Context, tenantID, id string) error {
	if err := s.repo.SetLeadJourneyStatus(ctx, tenantID, id, LeadJourneyActive, LeadJourneyPaused); err != nil {
		return err
	}
	return s.repo.CancelPendingForLeadJourney(ctx, id)
}

// ResumeLeadJourney reactivates a paused lead journey and schedules its
// current step to run immediately.
func (s *Service) ResumeLeadJourney(ctx context.Context, tenantID, id string) error {
	if err := s.repo.SetLeadJourneyStatus(ctx, tenantID, id, LeadJourneyPaused, LeadJourneyActive); err != nil {
		return err
	}
	lj, err := s.repo.GetLeadJourney(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if lj.CurrentStepID == "" {
		return nil
	}
	// A pause taken mid-dispatch leaves the claimed execution in
	// processing; it resumes on its own, so scheduling another here would
	// double-run the step.
	switch _, err := s.repo.OpenExecution(ctx, id); {
	case err == nil:
		return nil
	case !errors.Is(err, ErrNotFound):
		return err
	}
	now := s.clock().UTC()
	lj.NextExecutionTime = &now
	return s.repo.Advance(ctx, lj, &Execution{
		ID:            uuid.NewString(),
		LeadJourneyID: lj.ID,
		StepID:        lj.CurrentStepID,
		ScheduledTime: now,
		Status:        ExecutionPending,
	})
}
