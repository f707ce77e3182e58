package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"outreach-platform/internal/journey"
	"outreach-platform/internal/leads"
)

type stubSMS struct {
	sent []string
	err  error
}

func (s *stubSMS) SendSMS(ctx context.Context, tenantID, to, body string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, to)
	return "msg-1", nil
}

func TestSMSExecutor(t *testing.T) {
	sender := &stubSMS{}
	e := NewSMSExecutor(sender)
	lead := leads.Lead{ID: "l1", Phone: "+15550001111"}
	cfg := journey.ActionConfig{SMS: &journey.SMSActionConfig{Body: "hello"}}

	res, err := e.Execute(context.Background(), "t1", lead, nil, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Outcome != "sent" || res.Data["last_sms_id"] != "msg-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "+15550001111" {
		t.Fatalf("sent to %v", sender.sent)
	}
}

func TestSMSExecutorMissingPhoneIsPermanent(t *testing.T) {
	e := NewSMSExecutor(&stubSMS{})
	cfg := journey.ActionConfig{SMS: &journey.SMSActionConfig{Body: "hello"}}

	_, err := e.Execute(context.Background(), "t1", leads.Lead{ID: "l1"}, nil, cfg)
	if err == nil {
		t.Fatal("want error")
	}
	if journey.Classify(err) != journey.KindPermanent {
		t.Fatalf("Classify = %v, want permanent", journey.Classify(err))
	}
}

func TestSMSExecutorPropagatesSenderKind(t *testing.T) {
	e := NewSMSExecutor(&stubSMS{err: journey.Transient(errors.New("gateway busy"))})
	cfg := journey.ActionConfig{SMS: &journey.SMSActionConfig{Body: "hello"}}

	_, err := e.Execute(context.Background(), "t1", leads.Lead{ID: "l1", Phone: "+1555"}, nil, cfg)
	if journey.Classify(err) != journey.KindTransient {
		t.Fatalf("Classify = %v, want transient", journey.Classify(err))
	}
}

func TestWebhookExecutorPostsPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewWebhookExecutor(0)
	lead := leads.Lead{ID: "l1", Phone: "+15550001111", Status: leads.LeadStatusPending}
	cfg := journey.ActionConfig{Webhook: &journey.WebhookActionConfig{URL: srv.URL}}
	contextData := map[string]any{"last_call_outcome": "answered"}

	res, err := e.Execute(context.Background(), "t1", lead, contextData, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Outcome != "delivered" {
		t.Fatalf("outcome = %q", res.Outcome)
	}
	if got.TenantID != "t1" || got.LeadID != "l1" || got.ContextData["last_call_outcome"] != "answered" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestWebhookExecutorErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   journey.ErrorKind
	}{
		{http.StatusInternalServerError, journey.KindTransient},
		{http.StatusTooManyRequests, journey.KindTransient},
		{http.StatusNotFound, journey.KindPermanent},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		e := NewWebhookExecutor(0)
		cfg := journey.ActionConfig{Webhook: &journey.WebhookActionConfig{URL: srv.URL}}
		_, err := e.Execute(context.Background(), "t1", leads.Lead{ID: "l1"}, nil, cfg)
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: want error", tc.status)
		}
		if got := journey.Classify(err); got != tc.want {
			t.Fatalf("status %d: Classify = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestGatewayClientSendSMS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sms" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"message_id": "m-9"})
	}))
	defer srv.Close()

	g := NewGatewayClient(GatewayConfig{BaseURL: srv.URL})
	id, err := g.SendSMS(context.Background(), "t1", "+1555", "hi")
	if err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if id != "m-9" {
		t.Fatalf("message id = %q", id)
	}
}
