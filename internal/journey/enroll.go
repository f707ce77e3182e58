package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"outreach-platform/internal/leads"
)

// TenantLocator resolves a tenant's timezone for wall-clock scheduling.
type TenantLocator interface {
	Location(ctx context.Context, tenantID string) (*time.Location, error)
}

// Enroller runs the periodic enrollment sweep and handles manual
// enrollments. Duplicate prevention is delegated to the repository's
// one-live-enrollment constraint, so concurrent sweeps are safe.
type Enroller struct {
	repo    Repository
	leads   leads.Repository
	tenants TenantLocator
	log     *slog.Logger
	clock   func() time.Time

	// candidateLimit caps leads fetched per journey per sweep.
	candidateLimit int
}

func NewEnroller(repo Repository, leadRepo leads.Repository, tenants TenantLocator, log *slog.Logger) *Enroller {
	return &Enroller{
		repo:           repo,
		leads:          leadRepo,
		tenants:        tenants,
		log:            log,
		clock:          time.Now,
		candidateLimit: 1000,
	}
}

// Sweep enrolls matching leads into every active auto-enroll journey.
// A failure on one journey or lead never aborts the rest of the sweep.
// Returns the number of new enrollments.
func (e *Enroller) Sweep(ctx context.Context) (int, error) {
	journeys, err := e.repo.ListActiveAutoEnroll(ctx)
	if err != nil {
		return 0, fmt.Errorf("enroll sweep: list journeys: %w", err)
	}

	now := e.clock().UTC()
	enrolled := 0
	for _, j := range journeys {
		n, err := e.sweepJourney(ctx, j, now)
		if err != nil {
			e.log.Error("enrollment sweep failed for journey",
				"journey_id", j.ID, "tenant_id", j.TenantID, "error", err)
			continue
		}
		enrolled += n
	}
	return enrolled, nil
}

func (e *Enroller) sweepJourney(ctx context.Context, j Journey, now time.Time) (int, error) {
	first, ok := j.FirstStep()
	if !ok {
		return 0, fmt.Errorf("journey %s has no steps", j.ID)
	}

	// Indexable criteria fields narrow the candidate query; the rest is
	// checked in MatchesCriteria.
	filter := leads.CandidateFilter{
		Statuses: toLeadStatuses(j.TriggerCriteria.LeadStatus),
		Brands:   j.TriggerCriteria.Brands,
		Sources:  j.TriggerCriteria.Sources,
		Limit:    e.candidateLimit,
	}
	candidates, err := e.leads.ListCandidates(ctx, j.TenantID, filter)
	if err != nil {
		return 0, fmt.Errorf("list candidates: %w", err)
	}

	loc := e.location(ctx, j.TenantID)
	enrolled := 0
	for _, lead := range candidates {
		if !MatchesCriteria(lead, j.TriggerCriteria, now) {
			continue
		}
		ok, err := e.repeatAllowed(ctx, j, lead.ID, now)
		if err != nil {
			e.log.Error("repeat check failed",
				"journey_id", j.ID, "lead_id", lead.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		err = e.enroll(ctx, j, first, lead.ID, now, loc)
		switch {
		case errors.Is(err, ErrAlreadyEnrolled):
			continue
		case err != nil:
			e.log.Error("enrollment failed",
				"journey_id", j.ID, "lead_id", lead.ID, "error", err)
			continue
		}
		enrolled++
	}
	return enrolled, nil
}

// repeatAllowed decides whether the sweep may enroll a lead that has been
// through the journey before. RepeatDays zero means one enrollment ever;
// otherwise the latest terminal enrollment must be at least RepeatDays old.
// Live enrollments always block; the unique constraint is the backstop.
func (e *Enroller) repeatAllowed(ctx context.Context, j Journey, leadID string, now time.Time) (bool, error) {
	prev, err := e.repo.LatestEnrollment(ctx, j.TenantID, leadID, j.ID)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !prev.Status.Terminal() {
		return false, nil
	}
	if j.RepeatDays <= 0 {
		return false, nil
	}
	since := prev.StartedAt
	if prev.CompletedAt != nil {
		since = *prev.CompletedAt
	}
	return now.Sub(since) >= time.Duration(j.RepeatDays)*24*time.Hour, nil
}

// EnrollLead enrolls a single lead regardless of trigger criteria.
// Used by the manual enrollment endpoint.
func (e *Enroller) EnrollLead(ctx context.Context, tenantID, journeyID, leadID string) (LeadJourney, error) {
	j, err := e.repo.GetJourney(ctx, tenantID, journeyID)
	if err != nil {
		return LeadJourney{}, err
	}
	if !j.IsActive {
		return LeadJourney{}, fmt.Errorf("%w: journey is inactive", ErrInvalidArgument)
	}
	first, ok := j.FirstStep()
	if !ok {
		return LeadJourney{}, fmt.Errorf("%w: journey has no steps", ErrInvalidArgument)
	}
	if _, err := e.leads.Get(ctx, tenantID, leadID); err != nil {
		return LeadJourney{}, err
	}

	now := e.clock().UTC()
	lj, exec, err := e.build(j, first, leadID, now, e.location(ctx, tenantID))
	if err != nil {
		return LeadJourney{}, err
	}
	if err := e.repo.CreateEnrollment(ctx, lj, exec); err != nil {
		return LeadJourney{}, err
	}
	return lj, nil
}

func (e *Enroller) enroll(ctx context.Context, j Journey, first Step, leadID string, now time.Time, loc *time.Location) error {
	lj, exec, err := e.build(j, first, leadID, now, loc)
	if err != nil {
		return err
	}
	return e.repo.CreateEnrollment(ctx, lj, exec)
}

func (e *Enroller) build(j Journey, first Step, leadID string, now time.Time, loc *time.Location) (LeadJourney, Execution, error) {
	due, err := DueTime(first, ScheduleRef{Now: now, EnrolledAt: now, Location: loc})
	if err != nil {
		return LeadJourney{}, Execution{}, fmt.Errorf("schedule first step: %w", err)
	}

	lj := LeadJourney{
		ID:                uuid.NewString(),
		TenantID:          j.TenantID,
		LeadID:            leadID,
		JourneyID:         j.ID,
		Status:            LeadJourneyActive,
		CurrentStepID:     first.ID,
		StartedAt:         now,
		NextExecutionTime: &due,
		ContextData:       map[string]any{},
	}
	exec := Execution{
		ID:            uuid.NewString(),
		LeadJourneyID: lj.ID,
		StepID:        first.ID,
		ScheduledTime: due,
		Status:        ExecutionPending,
	}
	return lj, exec, nil
}

func (e *Enroller) location(ctx context.Context, tenantID string) *time.Location {
	if e.tenants == nil {
		return time.UTC
	}
	loc, err := e.tenants.Location(ctx, tenantID)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

func toLeadStatuses(in []string) []leads.LeadStatus {
	out := make([]leads.LeadStatus, 0, len(in))
	for _, s := range in {
		out = append(out, leads.LeadStatus(s))
	}
	return out
}
