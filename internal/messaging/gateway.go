package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"outreach-platform/internal/journey"
)

// GatewayConfig points the adapter at the messaging gateway's REST API.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// GatewayClient implements SMSSender and EmailSender over the gateway's
// HTTP API. No business logic; templating and branching stay in the
// journey executors.
type GatewayClient struct {
	cfg    GatewayConfig
	client *http.Client
}

func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GatewayClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (g *GatewayClient) SendSMS(ctx context.Context, tenantID, to, body string) (string, error) {
	payload := map[string]string{"tenant_id": tenantID, "to": to, "body": body}
	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := g.post(ctx, "/v1/sms", payload, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

func (g *GatewayClient) SendEmail(ctx context.Context, tenantID, to, subject, body string) error {
	payload := map[string]string{"tenant_id": tenantID, "to": to, "subject": subject, "body": body}
	return g.post(ctx, "/v1/email", payload, nil)
}

func (g *GatewayClient) post(ctx context.Context, path string, payload any, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return journey.Transient(fmt.Errorf("messaging: %s: %w", path, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return journey.Transient(fmt.Errorf("messaging: decode %s response: %w", path, err))
			}
		}
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return journey.Transient(fmt.Errorf("messaging: gateway returned %d: %s", resp.StatusCode, readBody(resp.Body)))
	default:
		return journey.Permanent(fmt.Errorf("messaging: gateway rejected request: %d: %s", resp.StatusCode, readBody(resp.Body)))
	}
}

func readBody(r io.Reader) string {
	buf, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(buf)
}
