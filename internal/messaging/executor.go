package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"outreach-platform/internal/journey"
	"outreach-platform/internal/leads"
)

// SMSExecutor runs journey sms steps.
type SMSExecutor struct {
	sender SMSSender
}

func NewSMSExecutor(sender SMSSender) *SMSExecutor { return &SMSExecutor{sender: sender} }

func (e *SMSExecutor) Execute(ctx context.Context, tenantID string, lead leads.Lead, _ map[string]any, cfg journey.ActionConfig) (journey.ExecResult, error) {
	if cfg.SMS == nil || cfg.SMS.Body == "" {
		return journey.ExecResult{}, journey.Configuration(fmt.Errorf("sms: missing body"))
	}
	if lead.Phone == "" {
		return journey.ExecResult{}, journey.Permanent(fmt.Errorf("sms: lead %s has no phone", lead.ID))
	}

	msgID, err := e.sender.SendSMS(ctx, tenantID, lead.Phone, cfg.SMS.Body)
	if err != nil {
		return journey.ExecResult{}, err
	}
	return journey.ExecResult{
		Outcome: "sent",
		Data:    map[string]any{"last_sms_id": msgID},
	}, nil
}

// EmailExecutor runs journey email steps.
type EmailExecutor struct {
	sender EmailSender
}

func NewEmailExecutor(sender EmailSender) *EmailExecutor { return &EmailExecutor{sender: sender} }

func (e *EmailExecutor) Execute(ctx context.Context, tenantID string, lead leads.Lead, _ map[string]any, cfg journey.ActionConfig) (journey.ExecResult, error) {
	if cfg.Email == nil || cfg.Email.Subject == "" || cfg.Email.Body == "" {
		return journey.ExecResult{}, journey.Configuration(fmt.Errorf("email: missing subject or body"))
	}
	if lead.Email == "" {
		return journey.ExecResult{}, journey.Permanent(fmt.Errorf("email: lead %s has no email address", lead.ID))
	}

	if err := e.sender.SendEmail(ctx, tenantID, lead.Email, cfg.Email.Subject, cfg.Email.Body); err != nil {
		return journey.ExecResult{}, err
	}
	return journey.ExecResult{Outcome: "sent"}, nil
}

// WebhookExecutor runs journey webhook steps: it POSTs the lead and the
// journey context to a tenant-configured URL.
type WebhookExecutor struct {
	client *http.Client
}

func NewWebhookExecutor(timeout time.Duration) *WebhookExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookExecutor{client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	TenantID    string         `json:"tenant_id"`
	LeadID      string         `json:"lead_id"`
	LeadPhone   string         `json:"lead_phone,omitempty"`
	LeadStatus  string         `json:"lead_status,omitempty"`
	ContextData map[string]any `json:"context_data,omitempty"`
}

func (e *WebhookExecutor) Execute(ctx context.Context, tenantID string, lead leads.Lead, contextData map[string]any, cfg journey.ActionConfig) (journey.ExecResult, error) {
	if cfg.Webhook == nil || cfg.Webhook.URL == "" {
		return journey.ExecResult{}, journey.Configuration(fmt.Errorf("webhook: missing url"))
	}
	method := strings.ToUpper(cfg.Webhook.Method)
	if method == "" {
		method = http.MethodPost
	}

	buf, err := json.Marshal(webhookPayload{
		TenantID:    tenantID,
		LeadID:      lead.ID,
		LeadPhone:   lead.Phone,
		LeadStatus:  string(lead.Status),
		ContextData: contextData,
	})
	if err != nil {
		return journey.ExecResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.Webhook.URL, bytes.NewReader(buf))
	if err != nil {
		return journey.ExecResult{}, journey.Configuration(fmt.Errorf("webhook: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return journey.ExecResult{}, journey.Transient(fmt.Errorf("webhook: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return journey.ExecResult{
			Outcome: "delivered",
			Data:    map[string]any{"last_webhook_status": resp.StatusCode},
		}, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return journey.ExecResult{}, journey.Transient(fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode))
	default:
		return journey.ExecResult{}, journey.Permanent(fmt.Errorf("webhook: endpoint rejected request: %d", resp.StatusCode))
	}
}
