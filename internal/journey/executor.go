package journey

import (
	"context"
	"fmt"

	"outreach-platform/internal/leads"
)

// ExecResult is what an executor hands back to the dispatcher.
type ExecResult struct {
	// Outcome is a short disposition string recorded on the execution and
	// in history ("completed", "queued", "applied", ...).
	Outcome string
	// Data is merged into the lead journey's context data; executors use
	// it to carry state forward (e.g. CtxLastCallOutcome).
	Data map[string]any
}

// ActionExecutor performs one step action. Implementations live outside
// this package (telephony, messaging, webhooks); the built-in lead
// mutations are registered here.
//
// Execute runs outside any database lock and must honor ctx cancellation.
// Failures should be wrapped with Transient/Permanent/Configuration so the
// dispatcher can decide whether to retry.
type ActionExecutor interface {
	Execute(ctx context.Context, tenantID string, lead leads.Lead, contextData map[string]any, cfg ActionConfig) (ExecResult, error)
}

// ExecutorFunc adapts a function to ActionExecutor.
type ExecutorFunc func(ctx context.Context, tenantID string, lead leads.Lead, contextData map[string]any, cfg ActionConfig) (ExecResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, tenantID string, lead leads.Lead, contextData map[string]any, cfg ActionConfig) (ExecResult, error) {
	return f(ctx, tenantID, lead, contextData, cfg)
}

// Registry maps action types to executors. Populated once at startup;
// not safe for concurrent registration after dispatch begins.
type Registry struct {
	executors map[ActionType]ActionExecutor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[ActionType]ActionExecutor)}
}

func (r *Registry) Register(t ActionType, e ActionExecutor) {
	r.executors[t] = e
}

// For returns the executor for an action type.
func (r *Registry) For(t ActionType) (ActionExecutor, error) {
	e, ok := r.executors[t]
	if !ok {
		return nil, Configuration(fmt.Errorf("no executor registered for action type %q", t))
	}
	return e, nil
}

// RegisterBuiltins wires the executors that act on the lead record itself:
// status_change, tag_update and the no-op delay action.
func (r *Registry) RegisterBuiltins(leadRepo leads.Repository) {
	r.Register(ActionStatusChange, ExecutorFunc(func(ctx context.Context, tenantID string, lead leads.Lead, _ map[string]any, cfg ActionConfig) (ExecResult, error) {
		if cfg.Status == nil || cfg.Status.Status == "" {
			return ExecResult{}, Configuration(fmt.Errorf("status_change: missing target status"))
		}
		if err := leadRepo.UpdateStatus(ctx, tenantID, lead.ID, leads.LeadStatus(cfg.Status.Status)); err != nil {
			return ExecResult{}, Transient(fmt.Errorf("status_change: %w", err))
		}
		return ExecResult{Outcome: "applied"}, nil
	}))

	r.Register(ActionTagUpdate, ExecutorFunc(func(ctx context.Context, tenantID string, lead leads.Lead, _ map[string]any, cfg ActionConfig) (ExecResult, error) {
		if cfg.Tags == nil || len(cfg.Tags.Add) == 0 {
			return ExecResult{}, Configuration(fmt.Errorf("tag_update: no tags configured"))
		}
		if err := leadRepo.AddTags(ctx, tenantID, lead.ID, cfg.Tags.Add); err != nil {
			return ExecResult{}, Transient(fmt.Errorf("tag_update: %w", err))
		}
		return ExecResult{Outcome: "applied"}, nil
	}))

	// A delay step does nothing itself; the wait happens in scheduling.
	r.Register(ActionDelay, ExecutorFunc(func(context.Context, string, leads.Lead, map[string]any, ActionConfig) (ExecResult, error) {
		return ExecResult{Outcome: "completed"}, nil
	}))
}
