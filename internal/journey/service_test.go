package journey

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateJourneyValidation(t *testing.T) {
	s := NewService(NewMemoryRepo())

	_, err := s.CreateJourney(context.Background(), "t1", Journey{Name: "empty"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("no steps: want ErrInvalidArgument, got %v", err)
	}

	_, err = s.CreateJourney(context.Background(), "t1", Journey{
		Name: "bad sms",
		Steps: []Step{
			{StepOrder: 1, ActionType: ActionSMS, DelayType: DelayImmediate},
		},
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing sms body: want ErrInvalidArgument, got %v", err)
	}

	_, err = s.CreateJourney(context.Background(), "t1", Journey{
		Name: "dup order",
		Steps: []Step{
			{StepOrder: 1, ActionType: ActionDelay, DelayType: DelayImmediate},
			{StepOrder: 1, ActionType: ActionDelay, DelayType: DelayImmediate},
		},
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("duplicate step_order: want ErrInvalidArgument, got %v", err)
	}

	j, err := s.CreateJourney(context.Background(), "t1", Journey{
		Name: "ok",
		Steps: []Step{
			{StepOrder: 1, ActionType: ActionSMS, DelayType: DelayImmediate,
				ActionConfig: ActionConfig{SMS: &SMSActionConfig{Body: "hi"}}},
		},
	})
	if err != nil {
		t.Fatalf("CreateJourney: %v", err)
	}
	if j.ID == "" || j.Steps[0].ID == "" || j.Steps[0].JourneyID != j.ID {
		t.Fatalf("ids not assigned: %+v", j)
	}
}

func TestPauseResumeLeadJourney(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo)
	s.clock = func() time.Time { return testNow }

	lj := LeadJourney{
		ID: "lj1", TenantID: "t1", LeadID: "l1", JourneyID: "j1",
		Status: LeadJourneyActive, CurrentStepID: "s1", StartedAt: testNow,
	}
	exec := Execution{ID: "e1", LeadJourneyID: "lj1", StepID: "s1", ScheduledTime: testNow.Add(time.Hour), Status: ExecutionPending}
	if err := repo.CreateEnrollment(context.Background(), lj, exec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.PauseLeadJourney(context.Background(), "t1", "lj1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got, _ := repo.Execution("e1"); got.Status != ExecutionCancelled {
		t.Fatalf("pending execution status = %s, want cancelled", got.Status)
	}
	if err := s.PauseLeadJourney(context.Background(), "t1", "lj1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double pause: want ErrInvalidTransition, got %v", err)
	}

	if err := s.ResumeLeadJourney(context.Background(), "t1", "lj1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	got, _ := repo.GetLeadJourneyByID(context.Background(), "lj1")
	if got.Status != LeadJourneyActive {
		t.Fatalf("status = %s, want active", got.Status)
	}

	// Resume re-creates the cursor execution, due immediately.
	var pending int
	for _, e := range repo.Executions("lj1") {
		if e.Status == ExecutionPending {
			pending++
			if !e.ScheduledTime.Equal(testNow) {
				t.Fatalf("resumed execution due %v, want %v", e.ScheduledTime, testNow)
			}
		}
	}
	if pending != 1 {
		t.Fatalf("pending executions = %d, want 1", pending)
	}
}

func TestResumeKeepsClaimedExecution(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo)
	s.clock = func() time.Time { return testNow }

	lj := LeadJourney{
		ID: "lj1", TenantID: "t1", LeadID: "l1", JourneyID: "j1",
		Status: LeadJourneyActive, CurrentStepID: "s1", StartedAt: testNow,
	}
	exec := Execution{ID: "e1", LeadJourneyID: "lj1", StepID: "s1", ScheduledTime: testNow, Status: ExecutionPending}
	if err := repo.CreateEnrollment(context.Background(), lj, exec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A worker claims the execution before the pause lands.
	claimed, err := repo.ClaimDue(context.Background(), testNow, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Status != ExecutionProcessing {
		t.Fatalf("unexpected claim result: %+v", claimed)
	}

	if err := s.PauseLeadJourney(context.Background(), "t1", "lj1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := s.ResumeLeadJourney(context.Background(), "t1", "lj1"); err != nil {
		t.Fatalf("resume: %v", err)
	}

	// The in-flight execution finishes on its own; resume must not
	// schedule a second one beside it.
	var open int
	for _, e := range repo.Executions("lj1") {
		if e.Status == ExecutionPending || e.Status == ExecutionProcessing {
			open++
		}
	}
	if open != 1 {
		t.Fatalf("open executions = %d, want 1", open)
	}
}
