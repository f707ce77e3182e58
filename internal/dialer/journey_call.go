package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"outreach-platform/internal/journey"
	"outreach-platform/internal/leads"
	"outreach-platform/internal/telephony"
	"outreach-platform/internal/tenants"
)

// CallExecutor runs journey call steps: select a DID, place the call and
// carry the outcome into journey context data for condition branching.
type CallExecutor struct {
	tenants  *tenants.Service
	repo     Repository
	placer   telephony.CallPlacer
	selector *Selector
	log      *slog.Logger
	clock    func() time.Time
}

func NewCallExecutor(tenantSvc *tenants.Service, repo Repository, placer telephony.CallPlacer, log *slog.Logger) *CallExecutor {
	return &CallExecutor{
		tenants:  tenantSvc,
		repo:     repo,
		placer:   placer,
		selector: NewSelector(),
		log:      log,
		clock:    time.Now,
	}
}

func (e *CallExecutor) Execute(ctx context.Context, tenantID string, lead leads.Lead, _ map[string]any, cfg journey.ActionConfig) (journey.ExecResult, error) {
	settings, err := e.tenants.Get(ctx, tenantID)
	if err != nil {
		return journey.ExecResult{}, journey.Transient(fmt.Errorf("call: tenant settings: %w", err))
	}

	strategy := settings.DIDStrategy
	transfer := settings.TransferNumber
	if cfg.Call != nil {
		if cfg.Call.DIDStrategy != "" {
			strategy = cfg.Call.DIDStrategy
		}
		if cfg.Call.TransferNumber != "" {
			transfer = cfg.Call.TransferNumber
		}
	}
	if transfer == "" {
		return journey.ExecResult{}, journey.Configuration(fmt.Errorf("call: no transfer number configured for tenant %s", tenantID))
	}

	dids, err := e.repo.ListActiveDIDs(ctx, tenantID)
	if err != nil {
		return journey.ExecResult{}, journey.Transient(fmt.Errorf("call: list dids: %w", err))
	}
	did, err := e.selector.Select(dids, ParseStrategy(strategy), lead.Phone)
	if err != nil {
		return journey.ExecResult{}, journey.Configuration(fmt.Errorf("call: %w", err))
	}

	res, err := e.placer.Place(ctx, telephony.PlaceRequest{
		TenantID:       tenantID,
		LeadPhone:      lead.Phone,
		CallerID:       did.Phone,
		TransferNumber: transfer,
		RoutingGroup:   settings.RoutingGroup,
	})
	if err != nil {
		return journey.ExecResult{}, err
	}

	// Bookkeeping after the call is accepted; the call is already live, so
	// failures here are logged rather than surfaced as execution failures.
	now := e.clock().UTC()
	if err := e.repo.InsertAttempt(ctx, CallAttempt{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		LeadID:         lead.ID,
		DIDID:          did.ID,
		LeadPhone:      lead.Phone,
		CallerID:       did.Phone,
		ProviderCallID: res.ProviderCallID,
		Outcome:        res.Outcome,
		PlacedAt:       now,
	}); err != nil {
		e.log.Error("record call attempt failed", "tenant_id", tenantID, "lead_id", lead.ID, "error", err)
	}
	if err := e.repo.IncrementDIDUsage(ctx, tenantID, did.ID, now); err != nil {
		e.log.Error("increment did usage failed", "tenant_id", tenantID, "did_id", did.ID, "error", err)
	}

	outcome := res.Outcome
	if outcome == "" {
		outcome = "placed"
	}
	return journey.ExecResult{
		Outcome: outcome,
		Data: map[string]any{
			journey.CtxLastCallOutcome: outcome,
		},
	}, nil
}
