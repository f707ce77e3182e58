package journey

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"outreach-platform/internal/history"
	"outreach-platform/internal/leads"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *MemoryRepo
	leads    *leads.MemoryRepo
	registry *Registry
	events   *history.MemoryRepo
	disp     *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     NewMemoryRepo(),
		leads:    leads.NewMemoryRepo(),
		registry: NewRegistry(),
		events:   history.NewMemoryRepo(),
	}
	f.disp = NewDispatcher(f.repo, f.leads, f.registry, history.NewService(f.events), nil, discardLogger(), DispatcherConfig{
		BatchSize:   10,
		MaxAttempts: 3,
		BackoffBase: time.Minute,
		BackoffCap:  30 * time.Minute,
	})
	f.disp.clock = func() time.Time { return testNow }
	return f
}

func (f *fixture) seedLead(id string) leads.Lead {
	l := leads.Lead{ID: id, TenantID: "t1", Phone: "+15550001111", Status: leads.LeadStatusPending, CreatedAt: testNow.AddDate(0, 0, -5)}
	f.leads.Put(l)
	return l
}

func (f *fixture) seedJourney(steps ...Step) Journey {
	j := Journey{ID: "j1", TenantID: "t1", Name: "test", IsActive: true, CreatedAt: testNow}
	for i := range steps {
		steps[i].JourneyID = j.ID
		if steps[i].ID == "" {
			steps[i].ID = fmt.Sprintf("s%d", steps[i].StepOrder)
		}
	}
	j.Steps = steps
	f.repo.CreateJourney(context.Background(), j)
	return j
}

func (f *fixture) seedEnrollment(j Journey, leadID, stepID string) (LeadJourney, Execution) {
	lj := LeadJourney{
		ID: "lj-" + leadID, TenantID: j.TenantID, LeadID: leadID, JourneyID: j.ID,
		Status: LeadJourneyActive, CurrentStepID: stepID, StartedAt: testNow.Add(-time.Hour),
		ContextData: map[string]any{},
	}
	exec := Execution{
		ID: "e-" + leadID, LeadJourneyID: lj.ID, StepID: stepID,
		ScheduledTime: testNow.Add(-time.Minute), Status: ExecutionPending,
	}
	if err := f.repo.CreateEnrollment(context.Background(), lj, exec); err != nil {
		panic(err)
	}
	return lj, exec
}

func TestDispatchAdvancesToNextStep(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	j := f.seedJourney(
		Step{StepOrder: 1, ActionType: ActionTagUpdate, DelayType: DelayImmediate,
			ActionConfig: ActionConfig{Tags: &TagUpdateConfig{Add: []string{"touched"}}}},
		Step{StepOrder: 2, ActionType: ActionDelay, DelayType: DelayAfterPrevious,
			DelayConfig: DelayConfig{Hours: 2}},
	)
	f.registry.RegisterBuiltins(f.leads)
	lj, _ := f.seedEnrollment(j, "l1", "s1")

	n, err := f.disp.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 1 {
		t.Fatalf("claimed %d executions, want 1", n)
	}

	got, err := f.repo.GetLeadJourneyByID(context.Background(), lj.ID)
	if err != nil {
		t.Fatalf("get lead journey: %v", err)
	}
	if got.Status != LeadJourneyActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if got.CurrentStepID != "s2" {
		t.Fatalf("current step = %s, want s2", got.CurrentStepID)
	}
	wantDue := testNow.Add(2 * time.Hour)
	if got.NextExecutionTime == nil || !got.NextExecutionTime.Equal(wantDue) {
		t.Fatalf("next execution = %v, want %v", got.NextExecutionTime, wantDue)
	}

	execs := f.repo.Executions(lj.ID)
	if len(execs) != 2 {
		t.Fatalf("got %d executions, want 2", len(execs))
	}
	lead, _ := f.leads.Get(context.Background(), "t1", "l1")
	if !lead.HasTag("touched") {
		t.Fatalf("tag_update executor did not run, tags = %v", lead.Tags)
	}
}

func TestDispatchExitPointCompletesJourney(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	j := f.seedJourney(
		Step{StepOrder: 1, ActionType: ActionStatusChange, DelayType: DelayImmediate, IsExitPoint: true,
			ActionConfig: ActionConfig{Status: &StatusChangeConfig{Status: "completed"}}},
	)
	f.registry.RegisterBuiltins(f.leads)
	lj, _ := f.seedEnrollment(j, "l1", "s1")

	if _, err := f.disp.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, _ := f.repo.GetLeadJourneyByID(context.Background(), lj.ID)
	if got.Status != LeadJourneyCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if got.NextExecutionTime != nil {
		t.Fatalf("next execution should be cleared, got %v", got.NextExecutionTime)
	}
}

func TestDispatchSkipsUnsatisfiedStepsAndExitsWhenNoneMatch(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	j := f.seedJourney(
		Step{StepOrder: 1, ActionType: ActionCall, DelayType: DelayImmediate},
		Step{StepOrder: 2, ActionType: ActionSMS, DelayType: DelayImmediate,
			ActionConfig: ActionConfig{SMS: &SMSActionConfig{Body: "hi"}},
			Conditions:   Conditions{CallOutcomes: []string{"no_answer"}}},
	)
	f.registry.Register(ActionCall, ExecutorFunc(func(context.Context, string, leads.Lead, map[string]any, ActionConfig) (ExecResult, error) {
		return ExecResult{Outcome: "answered", Data: map[string]any{CtxLastCallOutcome: "answered"}}, nil
	}))
	lj, _ := f.seedEnrollment(j, "l1", "s1")

	if _, err := f.disp.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, _ := f.repo.GetLeadJourneyByID(context.Background(), lj.ID)
	if got.Status != LeadJourneyExited {
		t.Fatalf("status = %s, want exited", got.Status)
	}
	if got.ContextData[CtxLastCallOutcome] != "answered" {
		t.Fatalf("context data not merged: %v", got.ContextData)
	}
}

func TestDispatchTransientFailureReschedulesWithBackoff(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	j := f.seedJourney(Step{StepOrder: 1, ActionType: ActionCall, DelayType: DelayImmediate})
	f.registry.Register(ActionCall, ExecutorFunc(func(context.Context, string, leads.Lead, map[string]any, ActionConfig) (ExecResult, error) {
		return ExecResult{}, Transient(errors.New("provider timeout"))
	}))
	lj, exec := f.seedEnrollment(j, "l1", "s1")

	if _, err := f.disp.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, _ := f.repo.Execution(exec.ID)
	if got.Status != ExecutionPending {
		t.Fatalf("status = %s, want pending (rescheduled)", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
	if want := testNow.Add(time.Minute); !got.ScheduledTime.Equal(want) {
		t.Fatalf("rescheduled at %v, want %v", got.ScheduledTime, want)
	}

	ljGot, _ := f.repo.GetLeadJourneyByID(context.Background(), lj.ID)
	if ljGot.Status != LeadJourneyActive {
		t.Fatalf("lead journey should stay active, got %s", ljGot.Status)
	}
}

func TestDispatchTransientFailureExhaustsAttempts(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	j := f.seedJourney(Step{StepOrder: 1, ActionType: ActionCall, DelayType: DelayImmediate})
	f.registry.Register(ActionCall, ExecutorFunc(func(context.Context, string, leads.Lead, map[string]any, ActionConfig) (ExecResult, error) {
		return ExecResult{}, Transient(errors.New("provider timeout"))
	}))
	lj, exec := f.seedEnrollment(j, "l1", "s1")

	for i := 0; i < 3; i++ {
		if _, err := f.disp.Tick(context.Background()); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		// Rescheduled executions are due in the future; pull them back so
		// the next tick claims them again.
		if e, ok := f.repo.Execution(exec.ID); ok && e.Status == ExecutionPending {
			f.repo.RescheduleExecution(context.Background(), exec.ID, testNow.Add(-time.Second), e.Attempts, e.ErrorMessage)
		}
	}

	got, _ := f.repo.Execution(exec.ID)
	if got.Status != ExecutionFailed {
		t.Fatalf("status = %s, want failed after attempt cap", got.Status)
	}
	ljGot, _ := f.repo.GetLeadJourneyByID(context.Background(), lj.ID)
	if ljGot.Status != LeadJourneyFailed {
		t.Fatalf("lead journey status = %s, want failed", ljGot.Status)
	}
	if ljGot.LastError == "" {
		t.Fatal("last error not recorded")
	}
}

func TestDispatchPermanentFailureDoesNotRetry(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	j := f.seedJourney(Step{StepOrder: 1, ActionType: ActionSMS, DelayType: DelayImmediate,
		ActionConfig: ActionConfig{SMS: &SMSActionConfig{Body: "hi"}}})
	f.registry.Register(ActionSMS, ExecutorFunc(func(context.Context, string, leads.Lead, map[string]any, ActionConfig) (ExecResult, error) {
		return ExecResult{}, Permanent(errors.New("invalid destination"))
	}))
	lj, exec := f.seedEnrollment(j, "l1", "s1")

	if _, err := f.disp.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, _ := f.repo.Execution(exec.ID)
	if got.Status != ExecutionFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	ljGot, _ := f.repo.GetLeadJourneyByID(context.Background(), lj.ID)
	if ljGot.Status != LeadJourneyFailed {
		t.Fatalf("lead journey status = %s, want failed", ljGot.Status)
	}
}

func TestDispatchCancelsExecutionOfPausedJourney(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	j := f.seedJourney(Step{StepOrder: 1, ActionType: ActionDelay, DelayType: DelayImmediate})
	f.registry.RegisterBuiltins(f.leads)
	lj, exec := f.seedEnrollment(j, "l1", "s1")

	if err := f.repo.SetLeadJourneyStatus(context.Background(), "t1", lj.ID, LeadJourneyActive, LeadJourneyPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, err := f.disp.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, _ := f.repo.Execution(exec.ID)
	if got.Status != ExecutionCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestDispatchFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	f.seedLead("l2")
	j := f.seedJourney(Step{StepOrder: 1, ActionType: ActionCall, DelayType: DelayImmediate})
	f.registry.Register(ActionCall, ExecutorFunc(func(_ context.Context, _ string, lead leads.Lead, _ map[string]any, _ ActionConfig) (ExecResult, error) {
		if lead.ID == "l1" {
			return ExecResult{}, Permanent(errors.New("boom"))
		}
		return ExecResult{Outcome: "answered"}, nil
	}))
	lj1, _ := f.seedEnrollment(j, "l1", "s1")
	lj2, _ := f.seedEnrollment(j, "l2", "s1")

	if _, err := f.disp.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got1, _ := f.repo.GetLeadJourneyByID(context.Background(), lj1.ID)
	got2, _ := f.repo.GetLeadJourneyByID(context.Background(), lj2.ID)
	if got1.Status != LeadJourneyFailed {
		t.Fatalf("lj1 status = %s, want failed", got1.Status)
	}
	if got2.Status.Terminal() && got2.Status != LeadJourneyExited {
		t.Fatalf("lj2 was dragged down by lj1's failure: %s", got2.Status)
	}
}

func TestClaimDueIsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	j := f.seedJourney(Step{StepOrder: 1, ActionType: ActionDelay, DelayType: DelayImmediate})
	for i := 0; i < 20; i++ {
		f.seedLead(fmt.Sprintf("lead%d", i))
		f.seedEnrollment(j, fmt.Sprintf("lead%d", i), "s1")
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := f.repo.ClaimDue(context.Background(), testNow, 3)
				if err != nil {
					t.Errorf("ClaimDue: %v", err)
					return
				}
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, e := range batch {
					seen[e.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 20 {
		t.Fatalf("claimed %d distinct executions, want 20", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("execution %s claimed %d times", id, n)
		}
	}
}

// End-to-end: call -> (no_answer) retry call -> (answered) status change exit.
func TestDispatchEndToEndBranching(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1")
	j := f.seedJourney(
		Step{StepOrder: 1, ActionType: ActionCall, DelayType: DelayImmediate},
		Step{StepOrder: 2, ActionType: ActionCall, DelayType: DelayAfterPrevious,
			DelayConfig: DelayConfig{Hours: 1},
			Conditions:  Conditions{CallOutcomes: []string{"no_answer", "busy"}}},
		Step{StepOrder: 3, ActionType: ActionStatusChange, DelayType: DelayImmediate, IsExitPoint: true,
			ActionConfig: ActionConfig{Status: &StatusChangeConfig{Status: "contacted"}},
			Conditions:   Conditions{CallOutcomes: []string{"answered"}}},
	)
	f.registry.RegisterBuiltins(f.leads)

	outcomes := []string{"no_answer", "answered"}
	calls := 0
	f.registry.Register(ActionCall, ExecutorFunc(func(context.Context, string, leads.Lead, map[string]any, ActionConfig) (ExecResult, error) {
		o := outcomes[calls]
		calls++
		return ExecResult{Outcome: o, Data: map[string]any{CtxLastCallOutcome: o}}, nil
	}))

	lj, _ := f.seedEnrollment(j, "l1", "s1")

	// Drive ticks until the journey reaches a terminal state, pulling
	// future-scheduled executions back to now between ticks.
	for i := 0; i < 5; i++ {
		if _, err := f.disp.Tick(context.Background()); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		got, _ := f.repo.GetLeadJourneyByID(context.Background(), lj.ID)
		if got.Status.Terminal() {
			break
		}
		for _, e := range f.repo.Executions(lj.ID) {
			if e.Status == ExecutionPending && e.ScheduledTime.After(testNow) {
				f.repo.RescheduleExecution(context.Background(), e.ID, testNow.Add(-time.Second), e.Attempts, "")
			}
		}
	}

	got, _ := f.repo.GetLeadJourneyByID(context.Background(), lj.ID)
	if got.Status != LeadJourneyCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if calls != 2 {
		t.Fatalf("call executor ran %d times, want 2", calls)
	}
	lead, _ := f.leads.Get(context.Background(), "t1", "l1")
	if lead.Status != leads.LeadStatusContacted {
		t.Fatalf("lead status = %s, want contacted", lead.Status)
	}

	events := f.events.Events()
	if len(events) < 3 {
		t.Fatalf("history has %d events, want at least 3", len(events))
	}
}
