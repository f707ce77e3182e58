package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTenantSendersBuildOncePerTenant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message_id": "m-1"})
	}))
	defer srv.Close()

	builds := 0
	senders := NewTenantSenders(func(ctx context.Context, tenantID string) (*GatewayClient, error) {
		builds++
		return NewGatewayClient(GatewayConfig{BaseURL: srv.URL}), nil
	})

	for i := 0; i < 3; i++ {
		if _, err := senders.SendSMS(context.Background(), "t1", "+13105550100", "hi"); err != nil {
			t.Fatalf("SendSMS: %v", err)
		}
	}
	if err := senders.SendEmail(context.Background(), "t2", "a@b.co", "s", "b"); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}

	senders.Invalidate("t1")
	if _, err := senders.SendSMS(context.Background(), "t1", "+13105550100", "hi"); err != nil {
		t.Fatalf("SendSMS after invalidate: %v", err)
	}
	if builds != 3 {
		t.Fatalf("builds = %d, want 3 after invalidate", builds)
	}
}
