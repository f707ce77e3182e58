package telephony

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

// PBXConfig points the adapter at the dialer gateway's REST API.
type PBXConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// PBXClient talks to the PBX gateway over HTTP. It implements CallPlacer
// and AgentStatusProvider and contains no business logic; decisions stay
// in internal/dialer and internal/journey.
type PBXClient struct {
	cfg    PBXConfig
	client *http.Client
	clock  func() time.Time
}

func NewPBXClient(cfg PBXConfig) *PBXClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &PBXClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  time.Now,
	}
}

func (p *PBXClient) Name() string { return "pbx" }

func (p *PBXClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telephony: pbx health returned %d", resp.StatusCode)
	}
	return nil
}

func (p *PBXClient) Place(ctx context.Context, preq PlaceRequest) (PlaceResult, error) {
	if preq.TenantID == "" || preq.LeadPhone == "" || preq.CallerID == "" {
		return PlaceResult{}, journey.Configuration(fmt.Errorf("telephony: place request missing required fields"))
	}

	body, err := json.Marshal(preq)
	if err != nil {
		return PlaceResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/calls", bytes.NewReader(body))
	if err != nil {
		return PlaceResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.do(req)
	if err != nil {
		return PlaceResult{}, journey.Transient(fmt.Errorf("telephony: place call: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var out PlaceResult
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return PlaceResult{}, journey.Transient(fmt.Errorf("telephony: decode place response: %w", err))
		}
		if out.PlacedAt.IsZero() {
			out.PlacedAt = p.clock().UTC()
		}
		return out, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return PlaceResult{}, journey.Transient(fmt.Errorf("telephony: pbx returned %d: %s", resp.StatusCode, readBody(resp.Body)))
	default:
		// 4xx: the request itself is bad (invalid number, unknown tenant).
		return PlaceResult{}, journey.Permanent(fmt.Errorf("telephony: pbx rejected call: %d: %s", resp.StatusCode, readBody(resp.Body)))
	}
}

func (p *PBXClient) GetStatus(ctx context.Context, tenantID, routingGroup string) (AgentStatus, error) {
	url := fmt.Sprintf("%s/v1/agents/status?tenant_id=%s", p.cfg.BaseURL, tenantID)
	if routingGroup != "" {
		url += "&routing_group=" + routingGroup
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return AgentStatus{}, err
	}
	resp, err := p.do(req)
	if err != nil {
		return AgentStatus{}, fmt.Errorf("telephony: agent status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return AgentStatus{}, fmt.Errorf("telephony: agent status returned %d", resp.StatusCode)
	}

	var out AgentStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AgentStatus{}, fmt.Errorf("telephony: decode agent status: %w", err)
	}
	out.TenantID = tenantID
	out.RoutingGroup = routingGroup
	out.FetchedAt = p.clock().UTC()
	return out, nil
}

func (p *PBXClient) do(req *http.Request) (*http.Response, error) {
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	return p.client.Do(req)
}

func readBody(r io.Reader) string {
	buf, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(buf)
}
