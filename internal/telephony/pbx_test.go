package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"outreach-platform/internal/journey"
)

func TestPBXClientPlace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k1" {
			t.Errorf("auth header = %q", got)
		}
		var req PlaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.LeadPhone != "+15550001111" || req.CallerID != "+15550002222" {
			t.Errorf("unexpected request body: %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(PlaceResult{ProviderCallID: "call-123"})
	}))
	defer srv.Close()

	c := NewPBXClient(PBXConfig{BaseURL: srv.URL, APIKey: "k1"})
	res, err := c.Place(context.Background(), PlaceRequest{
		TenantID:       "t1",
		LeadPhone:      "+15550001111",
		CallerID:       "+15550002222",
		TransferNumber: "+15550003333",
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.ProviderCallID != "call-123" {
		t.Fatalf("provider call id = %q", res.ProviderCallID)
	}
	if res.PlacedAt.IsZero() {
		t.Fatal("placed_at not defaulted")
	}
}

func TestPBXClientPlaceErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   journey.ErrorKind
	}{
		{"server error is transient", http.StatusBadGateway, journey.KindTransient},
		{"rate limit is transient", http.StatusTooManyRequests, journey.KindTransient},
		{"bad request is permanent", http.StatusBadRequest, journey.KindPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			c := NewPBXClient(PBXConfig{BaseURL: srv.URL})
			_, err := c.Place(context.Background(), PlaceRequest{TenantID: "t1", LeadPhone: "+1555", CallerID: "+1556"})
			if err == nil {
				t.Fatal("want error")
			}
			if got := journey.Classify(err); got != tc.want {
				t.Fatalf("Classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPBXClientGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agents/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("tenant_id"); got != "t1" {
			t.Errorf("tenant_id = %q", got)
		}
		json.NewEncoder(w).Encode(AgentStatus{AgentsWaiting: 4, AgentsOnCall: 2})
	}))
	defer srv.Close()

	c := NewPBXClient(PBXConfig{BaseURL: srv.URL})
	status, err := c.GetStatus(context.Background(), "t1", "sales")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.AgentsWaiting != 4 || status.TenantID != "t1" || status.RoutingGroup != "sales" {
		t.Fatalf("unexpected status: %+v", status)
	}
}
