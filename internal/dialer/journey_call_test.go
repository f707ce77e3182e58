package dialer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"outreach-platform/internal/journey"
	"outreach-platform/internal/leads"
	"outreach-platform/internal/telephony"
	"outreach-platform/internal/tenants"
)

func TestCallExecutorPlacesAndReportsOutcome(t *testing.T) {
	tenantRepo := tenants.NewMemoryRepo()
	s := tenants.Defaults("t1")
	s.TransferNumber = "+15550009999"
	s.DIDStrategy = "even"
	tenantRepo.Upsert(context.Background(), s)

	repo := NewMemoryRepo()
	repo.CreateDID(context.Background(), DID{ID: "d1", TenantID: "t1", Phone: "+12125550001", IsActive: true, CreatedAt: testNow})

	placer := &stubPlacer{}
	exec := NewCallExecutor(tenants.NewService(tenantRepo), repo, &outcomePlacer{inner: placer, outcome: telephony.OutcomeAnswered},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	exec.clock = func() time.Time { return testNow }

	lead := leads.Lead{ID: "l1", TenantID: "t1", Phone: "+13105551234"}
	res, err := exec.Execute(context.Background(), "t1", lead, nil, journey.ActionConfig{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Outcome != telephony.OutcomeAnswered {
		t.Fatalf("outcome = %q, want answered", res.Outcome)
	}
	if res.Data[journey.CtxLastCallOutcome] != telephony.OutcomeAnswered {
		t.Fatalf("context data = %v", res.Data)
	}

	attempts := repo.Attempts()
	if len(attempts) != 1 || attempts[0].CallerID != "+12125550001" {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}
	dids, _ := repo.ListActiveDIDs(context.Background(), "t1")
	if dids[0].UsageCount != 1 {
		t.Fatalf("did usage = %d, want 1", dids[0].UsageCount)
	}
}

func TestCallExecutorRequiresTransferNumber(t *testing.T) {
	tenantRepo := tenants.NewMemoryRepo()
	s := tenants.Defaults("t1")
	s.TransferNumber = ""
	tenantRepo.Upsert(context.Background(), s)

	exec := NewCallExecutor(tenants.NewService(tenantRepo), NewMemoryRepo(), &stubPlacer{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := exec.Execute(context.Background(), "t1", leads.Lead{ID: "l1", Phone: "+13105551234"}, nil, journey.ActionConfig{})
	if err == nil {
		t.Fatal("want error")
	}
	if journey.Classify(err) != journey.KindConfiguration {
		t.Fatalf("Classify = %v, want configuration", journey.Classify(err))
	}
}

// outcomePlacer decorates a placer with a synchronous outcome, as the
// gateway does for journey-placed calls.
type outcomePlacer struct {
	inner   telephony.CallPlacer
	outcome string
}

func (o *outcomePlacer) Name() string                          { return o.inner.Name() }
func (o *outcomePlacer) HealthCheck(ctx context.Context) error { return o.inner.HealthCheck(ctx) }

func (o *outcomePlacer) Place(ctx context.Context, req telephony.PlaceRequest) (telephony.PlaceResult, error) {
	res, err := o.inner.Place(ctx, req)
	if err != nil {
		return telephony.PlaceResult{}, err
	}
	res.Outcome = o.outcome
	return res, nil
}
