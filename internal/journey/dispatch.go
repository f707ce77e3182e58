package journey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"outreach-platform/internal/history"
	"outreach-platform/internal/leads"
	"outreach-platform/pkg/utils"
)

// DispatcherConfig tunes the dispatch loop.
type DispatcherConfig struct {
	// BatchSize caps executions claimed per tick.
	BatchSize int
	// MaxAttempts caps tries per execution, first attempt included.
	MaxAttempts int
	// BackoffBase/BackoffCap shape the transient-failure retry delay.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Dispatcher claims due executions, runs their step actions and advances
// lead journeys. Multiple instances may tick concurrently; the repository's
// claim step guarantees each execution is processed exactly once.
type Dispatcher struct {
	repo     Repository
	leads    leads.Repository
	registry *Registry
	history  *history.Service
	tenants  TenantLocator
	log      *slog.Logger
	clock    func() time.Time
	cfg      DispatcherConfig
}

func NewDispatcher(repo Repository, leadRepo leads.Repository, registry *Registry, hist *history.Service, tenants TenantLocator, log *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Minute
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Minute
	}
	return &Dispatcher{
		repo:     repo,
		leads:    leadRepo,
		registry: registry,
		history:  hist,
		tenants:  tenants,
		log:      log,
		clock:    time.Now,
		cfg:      cfg,
	}
}

// Tick claims and processes one batch of due executions. A failure on one
// execution never aborts the rest of the batch. Returns the number of
// executions claimed.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	now := d.clock().UTC()
	batch, err := d.repo.ClaimDue(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("dispatch: claim due executions: %w", err)
	}

	for _, e := range batch {
		if err := d.dispatch(ctx, e); err != nil {
			d.log.Error("dispatch failed",
				"execution_id", e.ID, "lead_journey_id", e.LeadJourneyID, "error", err)
		}
	}
	return len(batch), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, e Execution) error {
	lj, err := d.repo.GetLeadJourneyByID(ctx, e.LeadJourneyID)
	if err != nil {
		return fmt.Errorf("load lead journey: %w", err)
	}

	// Claimed while paused or already terminal: drop the execution without
	// running the action.
	if lj.Status != LeadJourneyActive {
		if err := d.repo.CancelExecution(ctx, e.ID); err != nil {
			return fmt.Errorf("cancel execution: %w", err)
		}
		d.record(ctx, lj, e, "", "cancelled", fmt.Sprintf("lead journey status %s", lj.Status))
		return nil
	}

	j, err := d.repo.GetJourney(ctx, lj.TenantID, lj.JourneyID)
	if err != nil {
		return d.failNow(ctx, lj, e, Step{}, fmt.Errorf("load journey: %w", err))
	}
	step, ok := j.StepByID(e.StepID)
	if !ok {
		return d.failNow(ctx, lj, e, Step{}, Configuration(fmt.Errorf("step %s not found in journey %s", e.StepID, j.ID)))
	}

	lead, err := d.leads.Get(ctx, lj.TenantID, lj.LeadID)
	if err != nil {
		return d.settleFailure(ctx, lj, e, step, Transient(fmt.Errorf("load lead: %w", err)))
	}

	executor, err := d.registry.For(step.ActionType)
	if err != nil {
		return d.settleFailure(ctx, lj, e, step, err)
	}

	// The action runs outside any database lock; the row is already
	// claimed, so a slow provider blocks nothing but this execution.
	res, execErr := executor.Execute(ctx, lj.TenantID, lead, cloneContext(lj.ContextData), step.ActionConfig)
	if execErr != nil {
		return d.settleFailure(ctx, lj, e, step, execErr)
	}
	return d.settleSuccess(ctx, lj, e, j, step, res)
}

func (d *Dispatcher) settleSuccess(ctx context.Context, lj LeadJourney, e Execution, j Journey, step Step, res ExecResult) error {
	now := d.clock().UTC()

	if lj.ContextData == nil {
		lj.ContextData = map[string]any{}
	}
	for k, v := range res.Data {
		lj.ContextData[k] = v
	}
	if res.Outcome != "" {
		lj.ContextData[CtxLastOutcome] = res.Outcome
	}

	if err := d.repo.CompleteExecution(ctx, e.ID, res.Outcome, now); err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}
	d.record(ctx, lj, e, string(step.ActionType), res.Outcome, detailJSON(res.Data))

	lj.CurrentStepID = step.ID
	lj.LastExecutionTime = &now
	lj.NextExecutionTime = nil

	if step.IsExitPoint {
		lj.Status = LeadJourneyCompleted
		lj.CompletedAt = &now
		return d.repo.Advance(ctx, lj, nil)
	}

	next, ok := nextStep(j.Steps, step, lj.ContextData)
	if !ok {
		// No subsequent step accepts the current context; the lead leaves
		// the journey rather than stalling forever.
		lj.Status = LeadJourneyExited
		lj.CompletedAt = &now
		d.record(ctx, lj, e, string(step.ActionType), "exited", "no eligible next step")
		return d.repo.Advance(ctx, lj, nil)
	}

	loc := d.location(ctx, lj.TenantID)
	due, err := DueTime(next, ScheduleRef{Now: now, EnrolledAt: lj.StartedAt, PrevCompletedAt: now, Location: loc})
	if err != nil {
		return d.failNow(ctx, lj, e, step, Configuration(fmt.Errorf("schedule step %s: %w", next.ID, err)))
	}

	lj.CurrentStepID = next.ID
	lj.NextExecutionTime = &due
	return d.repo.Advance(ctx, lj, &Execution{
		ID:            uuid.NewString(),
		LeadJourneyID: lj.ID,
		StepID:        next.ID,
		ScheduledTime: due,
		Status:        ExecutionPending,
	})
}

// settleFailure applies the retry policy: transient errors reschedule with
// exponential backoff until the attempt cap, everything else fails the
// execution and the lead journey.
func (d *Dispatcher) settleFailure(ctx context.Context, lj LeadJourney, e Execution, step Step, execErr error) error {
	now := d.clock().UTC()
	kind := Classify(execErr)

	if kind == KindTransient && e.Attempts < d.cfg.MaxAttempts {
		at := now.Add(utils.Backoff(e.Attempts, d.cfg.BackoffBase, d.cfg.BackoffCap))
		if err := d.repo.RescheduleExecution(ctx, e.ID, at, e.Attempts, execErr.Error()); err != nil {
			return fmt.Errorf("reschedule execution: %w", err)
		}
		d.log.Warn("execution rescheduled after transient failure",
			"execution_id", e.ID, "attempt", e.Attempts, "retry_at", at, "error", execErr)
		return nil
	}

	return d.failNow(ctx, lj, e, step, execErr)
}

func (d *Dispatcher) failNow(ctx context.Context, lj LeadJourney, e Execution, step Step, execErr error) error {
	now := d.clock().UTC()
	if err := d.repo.FailExecution(ctx, e.ID, execErr.Error(), now); err != nil {
		return fmt.Errorf("fail execution: %w", err)
	}
	d.record(ctx, lj, e, string(step.ActionType), "failed", execErr.Error())

	lj.Status = LeadJourneyFailed
	lj.CompletedAt = &now
	lj.NextExecutionTime = nil
	lj.LastError = execErr.Error()
	if err := d.repo.Advance(ctx, lj, nil); err != nil {
		return fmt.Errorf("mark lead journey failed: %w", err)
	}
	return execErr
}

// nextStep scans steps after the current one in order and returns the
// first whose conditions accept the context data.
func nextStep(steps []Step, current Step, contextData map[string]any) (Step, bool) {
	for _, s := range steps {
		if s.StepOrder <= current.StepOrder {
			continue
		}
		if s.Conditions.SatisfiedBy(contextData) {
			return s, true
		}
	}
	return Step{}, false
}

// record appends a history event; history is best-effort and never fails
// a dispatch.
func (d *Dispatcher) record(ctx context.Context, lj LeadJourney, e Execution, actionType, outcome, detail string) {
	if d.history == nil {
		return
	}
	err := d.history.Append(ctx, history.Event{
		TenantID:      lj.TenantID,
		LeadJourneyID: lj.ID,
		ExecutionID:   e.ID,
		StepID:        e.StepID,
		ActionType:    actionType,
		Outcome:       outcome,
		Detail:        detail,
	})
	if err != nil {
		d.log.Warn("history append failed", "execution_id", e.ID, "error", err)
	}
}

func (d *Dispatcher) location(ctx context.Context, tenantID string) *time.Location {
	if d.tenants == nil {
		return time.UTC
	}
	loc, err := d.tenants.Location(ctx, tenantID)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

func cloneContext(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func detailJSON(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(buf)
}
