package dialer

import (
	"testing"
	"time"
)

func tp(t time.Time) *time.Time { return &t }

func TestSelectEvenPicksLeastUsed(t *testing.T) {
	s := NewSelector()
	dids := []DID{
		{ID: "a", Phone: "+12125550001", UsageCount: 5},
		{ID: "b", Phone: "+12125550002", UsageCount: 2},
		{ID: "c", Phone: "+12125550003", UsageCount: 9},
	}
	got, err := s.Select(dids, StrategyEven, "+13105550000")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "b" {
		t.Fatalf("picked %s, want b", got.ID)
	}
}

func TestSelectRoundRobinPicksLeastRecentlyUsed(t *testing.T) {
	s := NewSelector()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	dids := []DID{
		{ID: "a", Phone: "+12125550001", LastUsedAt: tp(now.Add(-time.Minute))},
		{ID: "b", Phone: "+12125550002", LastUsedAt: tp(now.Add(-time.Hour))},
		{ID: "c", Phone: "+12125550003", LastUsedAt: tp(now)},
	}
	got, err := s.Select(dids, StrategyRoundRobin, "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "b" {
		t.Fatalf("picked %s, want b", got.ID)
	}

	// A never-used DID wins over any used one.
	dids = append(dids, DID{ID: "d", Phone: "+12125550004"})
	got, _ = s.Select(dids, StrategyRoundRobin, "")
	if got.ID != "d" {
		t.Fatalf("picked %s, want d", got.ID)
	}
}

func TestSelectGeographicMatchesAreaCode(t *testing.T) {
	s := NewSelector()
	dids := []DID{
		{ID: "ny", Phone: "+12125550001", UsageCount: 0},
		{ID: "la1", Phone: "+13105550002", UsageCount: 7},
		{ID: "la2", Phone: "+13105550003", UsageCount: 3},
	}

	// 310 lead: least-used 310 DID wins even though the 212 DID has lower usage.
	got, err := s.Select(dids, StrategyGeographic, "+13105551234")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "la2" {
		t.Fatalf("picked %s, want la2", got.ID)
	}

	// No matching area code falls back to least used overall.
	got, _ = s.Select(dids, StrategyGeographic, "+16175551234")
	if got.ID != "ny" {
		t.Fatalf("picked %s, want ny", got.ID)
	}

	// Unparseable lead phone falls back too.
	got, _ = s.Select(dids, StrategyGeographic, "not-a-number")
	if got.ID != "ny" {
		t.Fatalf("picked %s, want ny", got.ID)
	}
}

func TestSelectGeographicFallsBackToState(t *testing.T) {
	s := NewSelector()
	dids := []DID{
		{ID: "ny", Phone: "+12125550001", State: "NY", UsageCount: 0},
		{ID: "sf", Phone: "+14155550002", State: "CA", UsageCount: 8},
		{ID: "la", Phone: "+13105550003", State: "CA", UsageCount: 4},
	}

	// San Diego lead with no 619 DID: the least-used California DID wins
	// over the lower-usage New York one.
	got, err := s.Select(dids, StrategyGeographic, "+16195551234")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "la" {
		t.Fatalf("picked %s, want la", got.ID)
	}

	// DIDs created without a stored state still match via their area code.
	dids = []DID{
		{ID: "ny", Phone: "+12125550001", UsageCount: 0},
		{ID: "la", Phone: "+13105550003", UsageCount: 4},
	}
	got, _ = s.Select(dids, StrategyGeographic, "+16195551234")
	if got.ID != "la" {
		t.Fatalf("picked %s, want la", got.ID)
	}

	// No DID in the lead's state either: even fallback.
	got, _ = s.Select(dids, StrategyGeographic, "+13055551234")
	if got.ID != "ny" {
		t.Fatalf("picked %s, want ny", got.ID)
	}
}

func TestSelectRandomStaysInPool(t *testing.T) {
	s := NewSelector()
	dids := []DID{
		{ID: "a", Phone: "+12125550001"},
		{ID: "b", Phone: "+12125550002"},
	}
	for i := 0; i < 20; i++ {
		got, err := s.Select(dids, StrategyRandom, "")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if got.ID != "a" && got.ID != "b" {
			t.Fatalf("picked %s outside pool", got.ID)
		}
	}
}

func TestSelectEmptyPool(t *testing.T) {
	s := NewSelector()
	if _, err := s.Select(nil, StrategyEven, ""); err != ErrNoUsableDID {
		t.Fatalf("want ErrNoUsableDID, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	if got := ParseStrategy("geographic"); got != StrategyGeographic {
		t.Fatalf("got %s", got)
	}
	if got := ParseStrategy(""); got != StrategyEven {
		t.Fatalf("default should be even, got %s", got)
	}
	if got := ParseStrategy("bogus"); got != StrategyEven {
		t.Fatalf("unknown should fall back to even, got %s", got)
	}
}
