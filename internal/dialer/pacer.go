package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"outreach-platform/internal/leads"
	"outreach-platform/internal/telephony"
	"outreach-platform/internal/tenants"
	"outreach-platform/pkg/utils"
)

// PacerConfig tunes one pacer instance.
type PacerConfig struct {
	// PlacementDelay is the pause between consecutive placements so a
	// burst does not slam the PBX.
	PlacementDelay time.Duration
	// AttemptCooldown blocks re-dialing a lead attempted within this window.
	AttemptCooldown time.Duration
	// ConcurrencyCapTTL bounds how long a leaked in-flight slot survives.
	ConcurrencyCapTTL time.Duration
}

// Pacer decides, per tick and per tenant, how many calls to start and
// places them. Stateless between ticks: everything it needs is read
// fresh, so multiple instances can run as long as the in-flight cap in
// Redis is shared.
type Pacer struct {
	tenants  *tenants.Service
	leads    leads.Repository
	repo     Repository
	agents   telephony.AgentStatusProvider
	placer   telephony.CallPlacer
	selector *Selector
	rdb      *redis.Client
	log      *slog.Logger
	clock    func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
	cfg      PacerConfig
}

func NewPacer(
	tenantSvc *tenants.Service,
	leadRepo leads.Repository,
	repo Repository,
	agents telephony.AgentStatusProvider,
	placer telephony.CallPlacer,
	rdb *redis.Client,
	log *slog.Logger,
	cfg PacerConfig,
) *Pacer {
	if cfg.PlacementDelay <= 0 {
		cfg.PlacementDelay = 200 * time.Millisecond
	}
	if cfg.AttemptCooldown <= 0 {
		cfg.AttemptCooldown = 24 * time.Hour
	}
	if cfg.ConcurrencyCapTTL <= 0 {
		cfg.ConcurrencyCapTTL = 5 * time.Minute
	}
	return &Pacer{
		tenants:  tenantSvc,
		leads:    leadRepo,
		repo:     repo,
		agents:   agents,
		placer:   placer,
		selector: NewSelector(),
		rdb:      rdb,
		log:      log,
		clock:    time.Now,
		sleep:    sleepCtx,
		cfg:      cfg,
	}
}

// Tick paces every dial-enabled tenant once. One tenant's failure never
// blocks the others. Returns the total number of calls placed.
func (p *Pacer) Tick(ctx context.Context) (int, error) {
	settings, err := p.tenants.ListDialEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("pacer: list dial-enabled tenants: %w", err)
	}

	placed := 0
	for _, s := range settings {
		n, err := p.paceTenant(ctx, s)
		if err != nil {
			p.log.Error("pacing failed for tenant", "tenant_id", s.TenantID, "error", err)
			continue
		}
		placed += n
	}
	return placed, nil
}

func (p *Pacer) paceTenant(ctx context.Context, s tenants.Settings) (int, error) {
	now := p.clock().UTC()
	loc := s.Location()

	if !s.BusinessHours.Within(now, loc) {
		return 0, nil
	}

	status, err := p.agents.GetStatus(ctx, s.TenantID, s.RoutingGroup)
	if err != nil {
		return 0, fmt.Errorf("agent status: %w", err)
	}
	if status.AgentsWaiting < s.MinAgentsAvailable {
		return 0, nil
	}

	toDial := int(math.Ceil(float64(status.AgentsWaiting) * s.Speed))
	if toDial <= 0 {
		return 0, nil
	}

	cutoff := now.Add(-p.cfg.AttemptCooldown)
	batch, err := p.leads.ListDialable(ctx, s.TenantID, cutoff, leads.DialOrder(s.DialOrder), toDial)
	if err != nil {
		return 0, fmt.Errorf("list dialable leads: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	dids, err := p.repo.ListActiveDIDs(ctx, s.TenantID)
	if err != nil {
		return 0, fmt.Errorf("list dids: %w", err)
	}
	if len(dids) == 0 {
		return 0, ErrNoUsableDID
	}

	placed := 0
	for i, lead := range batch {
		if ctx.Err() != nil {
			break
		}
		if err := p.placeOne(ctx, s, lead, dids, now); err != nil {
			p.log.Error("call placement failed",
				"tenant_id", s.TenantID, "lead_id", lead.ID, "error", err)
			continue
		}
		placed++
		if i < len(batch)-1 {
			p.sleep(ctx, p.cfg.PlacementDelay)
		}
	}
	return placed, nil
}

func (p *Pacer) placeOne(ctx context.Context, s tenants.Settings, lead leads.Lead, dids []DID, now time.Time) error {
	// Per-tenant in-flight cap; the slot is released by the call-events
	// webhook, with the TTL as crash protection.
	if p.rdb != nil {
		ok, err := utils.AcquireConcurrencyCap(ctx, p.rdb, inflightKey(s.TenantID), s.MaxConcurrentCalls, p.cfg.ConcurrencyCapTTL)
		if err != nil {
			return fmt.Errorf("acquire in-flight cap: %w", err)
		}
		if !ok {
			return fmt.Errorf("tenant %s at in-flight call cap (%d)", s.TenantID, s.MaxConcurrentCalls)
		}
	}

	did, err := p.selector.Select(dids, ParseStrategy(s.DIDStrategy), lead.Phone)
	if err != nil {
		p.releaseSlot(ctx, s.TenantID)
		return err
	}

	res, err := p.placer.Place(ctx, telephony.PlaceRequest{
		TenantID:       s.TenantID,
		LeadPhone:      lead.Phone,
		CallerID:       did.Phone,
		TransferNumber: s.TransferNumber,
		RoutingGroup:   s.RoutingGroup,
	})
	if err != nil {
		p.releaseSlot(ctx, s.TenantID)
		return fmt.Errorf("place call: %w", err)
	}

	// Bookkeeping after the call is accepted. Counter updates are atomic
	// in storage; failures here are logged but the call is already live.
	if err := p.repo.InsertAttempt(ctx, CallAttempt{
		ID:             uuid.NewString(),
		TenantID:       s.TenantID,
		LeadID:         lead.ID,
		DIDID:          did.ID,
		LeadPhone:      lead.Phone,
		CallerID:       did.Phone,
		ProviderCallID: res.ProviderCallID,
		PlacedAt:       now,
	}); err != nil {
		p.log.Error("record call attempt failed", "tenant_id", s.TenantID, "lead_id", lead.ID, "error", err)
	}
	if err := p.leads.IncrementAttempts(ctx, s.TenantID, lead.ID, now); err != nil {
		p.log.Error("increment lead attempts failed", "tenant_id", s.TenantID, "lead_id", lead.ID, "error", err)
	}
	if err := p.repo.IncrementDIDUsage(ctx, s.TenantID, did.ID, now); err != nil {
		p.log.Error("increment did usage failed", "tenant_id", s.TenantID, "did_id", did.ID, "error", err)
	}
	return nil
}

func (p *Pacer) releaseSlot(ctx context.Context, tenantID string) {
	if p.rdb == nil {
		return
	}
	if err := utils.ReleaseConcurrencyCap(ctx, p.rdb, inflightKey(tenantID)); err != nil {
		p.log.Warn("release in-flight cap failed", "tenant_id", tenantID, "error", err)
	}
}

func inflightKey(tenantID string) string {
	return "dial:inflight:" + tenantID
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
