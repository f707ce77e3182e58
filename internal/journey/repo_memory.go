package journey

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests. It mirrors the
// Postgres implementation's semantics, including the one-live-enrollment
// constraint and exactly-once claims.
type MemoryRepo struct {
	mu           sync.Mutex
	journeys     map[string]Journey
	leadJourneys map[string]LeadJourney
	executions   map[string]Execution
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		journeys:     make(map[string]Journey),
		leadJourneys: make(map[string]LeadJourney),
		executions:   make(map[string]Execution),
	}
}

func (r *MemoryRepo) CreateJourney(ctx context.Context, j Journey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journeys[j.ID] = j
	return nil
}

func (r *MemoryRepo) GetJourney(ctx context.Context, tenantID, id string) (Journey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.journeys[id]
	if !ok || j.TenantID != tenantID {
		return Journey{}, ErrNotFound
	}
	return withSortedSteps(j), nil
}

func (r *MemoryRepo) ListJourneys(ctx context.Context, tenantID string) ([]Journey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Journey
	for _, j := range r.journeys {
		if j.TenantID == tenantID {
			out = append(out, withSortedSteps(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ListActiveAutoEnroll(ctx context.Context) ([]Journey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Journey
	for _, j := range r.journeys {
		if j.IsActive && j.TriggerCriteria.AutoEnroll {
			out = append(out, withSortedSteps(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) SetJourneyActive(ctx context.Context, tenantID, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.journeys[id]
	if !ok || j.TenantID != tenantID {
		return ErrNotFound
	}
	j.IsActive = active
	r.journeys[id] = j
	return nil
}

func (r *MemoryRepo) DeleteJourney(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.journeys[id]
	if !ok || j.TenantID != tenantID {
		return ErrNotFound
	}
	delete(r.journeys, id)
	return nil
}

func (r *MemoryRepo) CreateEnrollment(ctx context.Context, lj LeadJourney, first Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.leadJourneys {
		if existing.LeadID == lj.LeadID && existing.JourneyID == lj.JourneyID && !existing.Status.Terminal() {
			return ErrAlreadyEnrolled
		}
	}
	r.leadJourneys[lj.ID] = lj
	r.executions[first.ID] = first
	return nil
}

func (r *MemoryRepo) LatestEnrollment(ctx context.Context, tenantID, leadID, journeyID string) (LeadJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest LeadJourney
	found := false
	for _, lj := range r.leadJourneys {
		if lj.TenantID != tenantID || lj.LeadID != leadID || lj.JourneyID != journeyID {
			continue
		}
		if !found || lj.StartedAt.After(latest.StartedAt) {
			latest = lj
			found = true
		}
	}
	if !found {
		return LeadJourney{}, ErrNotFound
	}
	return latest, nil
}

func (r *MemoryRepo) GetLeadJourney(ctx context.Context, tenantID, id string) (LeadJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lj, ok := r.leadJourneys[id]
	if !ok || lj.TenantID != tenantID {
		return LeadJourney{}, ErrNotFound
	}
	return lj, nil
}

func (r *MemoryRepo) GetLeadJourneyByID(ctx context.Context, id string) (LeadJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lj, ok := r.leadJourneys[id]
	if !ok {
		return LeadJourney{}, ErrNotFound
	}
	return lj, nil
}

func (r *MemoryRepo) ListLeadJourneys(ctx context.Context, tenantID, journeyID string, status LeadJourneyStatus) ([]LeadJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LeadJourney
	for _, lj := range r.leadJourneys {
		if lj.TenantID != tenantID {
			continue
		}
		if journeyID != "" && lj.JourneyID != journeyID {
			continue
		}
		if status != "" && lj.Status != status {
			continue
		}
		out = append(out, lj)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.Before(out[b].StartedAt) })
	return out, nil
}

func (r *MemoryRepo) SetLeadJourneyStatus(ctx context.Context, tenantID, id string, from, to LeadJourneyStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lj, ok := r.leadJourneys[id]
	if !ok || lj.TenantID != tenantID {
		return ErrNotFound
	}
	if lj.Status != from {
		return ErrInvalidTransition
	}
	lj.Status = to
	r.leadJourneys[id] = lj
	return nil
}

func (r *MemoryRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []Execution
	for _, e := range r.executions {
		if e.Status == ExecutionPending && !e.ScheduledTime.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].ScheduledTime.Before(due[b].ScheduledTime) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	at := now
	for i := range due {
		e := due[i]
		e.Status = ExecutionProcessing
		e.Attempts++
		e.LastAttempt = &at
		r.executions[e.ID] = e
		due[i] = e
	}
	return due, nil
}

func (r *MemoryRepo) CompleteExecution(ctx context.Context, id, result string, at time.Time) error {
	return r.updateExecution(id, func(e *Execution) {
		e.Status = ExecutionCompleted
		e.Result = result
		e.LastAttempt = &at
	})
}

func (r *MemoryRepo) FailExecution(ctx context.Context, id, errMsg string, at time.Time) error {
	return r.updateExecution(id, func(e *Execution) {
		e.Status = ExecutionFailed
		e.ErrorMessage = errMsg
		e.LastAttempt = &at
	})
}

func (r *MemoryRepo) CancelExecution(ctx context.Context, id string) error {
	return r.updateExecution(id, func(e *Execution) {
		e.Status = ExecutionCancelled
	})
}

func (r *MemoryRepo) RescheduleExecution(ctx context.Context, id string, at time.Time, attempts int, errMsg string) error {
	return r.updateExecution(id, func(e *Execution) {
		e.Status = ExecutionPending
		e.ScheduledTime = at
		e.Attempts = attempts
		e.ErrorMessage = errMsg
	})
}

func (r *MemoryRepo) CancelPendingForLeadJourney(ctx context.Context, leadJourneyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.executions {
		if e.LeadJourneyID == leadJourneyID && e.Status == ExecutionPending {
			e.Status = ExecutionCancelled
			r.executions[id] = e
		}
	}
	return nil
}

func (r *MemoryRepo) OpenExecution(ctx context.Context, leadJourneyID string) (Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.executions {
		if e.LeadJourneyID == leadJourneyID &&
			(e.Status == ExecutionPending || e.Status == ExecutionProcessing) {
			return e, nil
		}
	}
	return Execution{}, ErrNotFound
}

func (r *MemoryRepo) Advance(ctx context.Context, lj LeadJourney, next *Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leadJourneys[lj.ID]; !ok {
		return ErrNotFound
	}
	r.leadJourneys[lj.ID] = lj
	if next != nil {
		r.executions[next.ID] = *next
	}
	return nil
}

// Execution returns a stored execution; test helper.
func (r *MemoryRepo) Execution(id string) (Execution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executions[id]
	return e, ok
}

// Executions returns all stored executions for a lead journey; test helper.
func (r *MemoryRepo) Executions(leadJourneyID string) []Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Execution
	for _, e := range r.executions {
		if e.LeadJourneyID == leadJourneyID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ScheduledTime.Before(out[b].ScheduledTime) })
	return out
}

func (r *MemoryRepo) updateExecution(id string, fn func(*Execution)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executions[id]
	if !ok {
		return ErrNotFound
	}
	fn(&e)
	r.executions[id] = e
	return nil
}

func withSortedSteps(j Journey) Journey {
	steps := make([]Step, len(j.Steps))
	copy(steps, j.Steps)
	sort.Slice(steps, func(a, b int) bool { return steps[a].StepOrder < steps[b].StepOrder })
	j.Steps = steps
	return j
}
