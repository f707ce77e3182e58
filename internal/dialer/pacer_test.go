package dialer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"outreach-platform/internal/leads"
	"outreach-platform/internal/telephony"
	"outreach-platform/internal/tenants"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) // Tuesday, 10:00 New York

type stubAgents struct {
	status telephony.AgentStatus
	err    error
}

func (s *stubAgents) GetStatus(ctx context.Context, tenantID, routingGroup string) (telephony.AgentStatus, error) {
	return s.status, s.err
}

type stubPlacer struct {
	placed []telephony.PlaceRequest
	fail   func(req telephony.PlaceRequest) error
}

func (s *stubPlacer) Name() string                          { return "stub" }
func (s *stubPlacer) HealthCheck(ctx context.Context) error { return nil }

func (s *stubPlacer) Place(ctx context.Context, req telephony.PlaceRequest) (telephony.PlaceResult, error) {
	if s.fail != nil {
		if err := s.fail(req); err != nil {
			return telephony.PlaceResult{}, err
		}
	}
	s.placed = append(s.placed, req)
	return telephony.PlaceResult{ProviderCallID: fmt.Sprintf("call-%d", len(s.placed)), PlacedAt: testNow}, nil
}

type pacerFixture struct {
	tenants *tenants.MemoryRepo
	leads   *leads.MemoryRepo
	repo    *MemoryRepo
	agents  *stubAgents
	placer  *stubPlacer
	pacer   *Pacer
}

func newPacerFixture(t *testing.T) *pacerFixture {
	t.Helper()
	f := &pacerFixture{
		tenants: tenants.NewMemoryRepo(),
		leads:   leads.NewMemoryRepo(),
		repo:    NewMemoryRepo(),
		agents:  &stubAgents{},
		placer:  &stubPlacer{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.pacer = NewPacer(tenants.NewService(f.tenants), f.leads, f.repo, f.agents, f.placer, nil, log, PacerConfig{
		PlacementDelay:  time.Nanosecond,
		AttemptCooldown: 24 * time.Hour,
	})
	f.pacer.clock = func() time.Time { return testNow }
	return f
}

func (f *pacerFixture) seedTenant(speed float64, minAgents int) tenants.Settings {
	s := tenants.Defaults("t1")
	s.DialEnabled = true
	s.Speed = speed
	s.MinAgentsAvailable = minAgents
	s.Timezone = "America/New_York"
	s.TransferNumber = "+15550009999"
	f.tenants.Upsert(context.Background(), s)
	return s
}

func (f *pacerFixture) seedLeads(n int) {
	for i := 0; i < n; i++ {
		f.leads.Put(leads.Lead{
			ID: fmt.Sprintf("l%d", i), TenantID: "t1", Phone: fmt.Sprintf("+1212555%04d", i),
			Status: leads.LeadStatusPending, Assignments: []string{leads.AssignmentAutoDialer},
			CreatedAt: testNow.Add(-time.Duration(n-i) * time.Hour),
		})
	}
}

func (f *pacerFixture) seedDIDs(n int) {
	for i := 0; i < n; i++ {
		f.repo.CreateDID(context.Background(), DID{
			ID: fmt.Sprintf("d%d", i), TenantID: "t1", Phone: fmt.Sprintf("+1310555%04d", i),
			IsActive: true, CreatedAt: testNow.Add(-time.Hour),
		})
	}
}

func TestPacerPlacesCeilOfWaitingTimesSpeed(t *testing.T) {
	f := newPacerFixture(t)
	f.seedTenant(1.5, 1)
	f.seedLeads(10)
	f.seedDIDs(2)
	f.agents.status = telephony.AgentStatus{AgentsWaiting: 4}

	placed, err := f.pacer.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if placed != 6 { // ceil(4 * 1.5)
		t.Fatalf("placed %d calls, want 6", placed)
	}
	if got := len(f.repo.Attempts()); got != 6 {
		t.Fatalf("recorded %d attempts, want 6", got)
	}
	for _, req := range f.placer.placed {
		if req.TransferNumber != "+15550009999" {
			t.Fatalf("transfer number = %q", req.TransferNumber)
		}
	}
}

func TestPacerMinAgentsGate(t *testing.T) {
	f := newPacerFixture(t)
	f.seedTenant(2.0, 3)
	f.seedLeads(5)
	f.seedDIDs(1)
	f.agents.status = telephony.AgentStatus{AgentsWaiting: 2}

	placed, err := f.pacer.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if placed != 0 {
		t.Fatalf("placed %d calls below min agents, want 0", placed)
	}
}

func TestPacerBusinessHoursGate(t *testing.T) {
	f := newPacerFixture(t)
	f.seedTenant(1.0, 1)
	f.seedLeads(5)
	f.seedDIDs(1)
	f.agents.status = telephony.AgentStatus{AgentsWaiting: 4}

	// 07:00 UTC is 02:00 in New York, outside 09:00-20:00.
	f.pacer.clock = func() time.Time { return time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC) }

	placed, err := f.pacer.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if placed != 0 {
		t.Fatalf("placed %d calls outside business hours, want 0", placed)
	}
}

func TestPacerAttemptCooldown(t *testing.T) {
	f := newPacerFixture(t)
	f.seedTenant(1.0, 1)
	f.seedDIDs(1)
	f.agents.status = telephony.AgentStatus{AgentsWaiting: 5}

	recent := testNow.Add(-time.Hour)
	stale := testNow.Add(-48 * time.Hour)
	f.leads.Put(leads.Lead{ID: "recent", TenantID: "t1", Phone: "+12125550001", Status: leads.LeadStatusPending,
		Assignments: []string{leads.AssignmentAutoDialer}, LastAttemptAt: &recent, CreatedAt: stale})
	f.leads.Put(leads.Lead{ID: "stale", TenantID: "t1", Phone: "+12125550002", Status: leads.LeadStatusPending,
		Assignments: []string{leads.AssignmentAutoDialer}, LastAttemptAt: &stale, CreatedAt: stale})

	placed, err := f.pacer.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if placed != 1 {
		t.Fatalf("placed %d calls, want 1 (cooldown should skip the recent lead)", placed)
	}
	if f.placer.placed[0].LeadPhone != "+12125550002" {
		t.Fatalf("dialed %s, want the stale lead", f.placer.placed[0].LeadPhone)
	}
}

func TestPacerUpdatesCountersAfterPlacement(t *testing.T) {
	f := newPacerFixture(t)
	f.seedTenant(1.0, 1)
	f.seedLeads(1)
	f.seedDIDs(1)
	f.agents.status = telephony.AgentStatus{AgentsWaiting: 1}

	if _, err := f.pacer.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	lead, _ := f.leads.Get(context.Background(), "t1", "l0")
	if lead.AttemptCount != 1 {
		t.Fatalf("lead attempt count = %d, want 1", lead.AttemptCount)
	}
	if lead.LastAttemptAt == nil || !lead.LastAttemptAt.Equal(testNow) {
		t.Fatalf("lead last attempt = %v, want %v", lead.LastAttemptAt, testNow)
	}
	dids, _ := f.repo.ListActiveDIDs(context.Background(), "t1")
	if dids[0].UsageCount != 1 {
		t.Fatalf("did usage = %d, want 1", dids[0].UsageCount)
	}
}

func TestPacerFailureIsolationAcrossLeads(t *testing.T) {
	f := newPacerFixture(t)
	f.seedTenant(1.0, 1)
	f.seedLeads(3)
	f.seedDIDs(1)
	f.agents.status = telephony.AgentStatus{AgentsWaiting: 3}
	f.placer.fail = func(req telephony.PlaceRequest) error {
		if req.LeadPhone == "+12125550001" {
			return errors.New("pbx hiccup")
		}
		return nil
	}

	placed, err := f.pacer.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if placed != 2 {
		t.Fatalf("placed %d calls, want 2 (one lead fails, others proceed)", placed)
	}
}

func TestPacerSkipsTenantWhenAgentStatusUnavailable(t *testing.T) {
	f := newPacerFixture(t)
	f.seedTenant(1.0, 1)
	f.seedLeads(3)
	f.seedDIDs(1)
	f.agents.err = errors.New("pbx down")

	placed, err := f.pacer.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if placed != 0 {
		t.Fatalf("placed %d calls with no agent data, want 0", placed)
	}
}
