package telephony

import (
	"context"
	"time"
)

// CallPlacer starts an outbound call at the PBX boundary.
//
// Rules:
// - No PBX/provider SDK calls outside telephony adapters.
// - All requests are tenant-scoped (tenant_id required).
// - Keep request/response types provider-agnostic.
type CallPlacer interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// Place starts the call and returns once the provider accepts it; call
	// progress arrives later via webhook. Errors should be wrapped with the
	// journey error kinds so the pacer and dispatcher can decide on retry.
	Place(ctx context.Context, req PlaceRequest) (PlaceResult, error)
}

type PlaceRequest struct {
	TenantID string `json:"tenant_id"`

	// LeadPhone and CallerID are E.164.
	LeadPhone string `json:"lead_phone"`
	CallerID  string `json:"caller_id"`

	// TransferNumber receives the call once the lead answers.
	TransferNumber string `json:"transfer_number"`

	// RoutingGroup scopes which agent pool handles the connect.
	RoutingGroup string `json:"routing_group,omitempty"`
}

type PlaceResult struct {
	// ProviderCallID is the provider's identifier for the placed call.
	ProviderCallID string    `json:"provider_call_id"`
	PlacedAt       time.Time `json:"placed_at"`

	// Outcome is set when the gateway tracks the call to completion
	// (journey-placed calls); paced calls report asynchronously via the
	// call-events webhook and leave it empty.
	Outcome string `json:"outcome,omitempty"`
}

// AgentStatus is a point-in-time availability snapshot for one tenant's
// routing group.
type AgentStatus struct {
	TenantID      string    `json:"tenant_id"`
	RoutingGroup  string    `json:"routing_group,omitempty"`
	AgentsWaiting int       `json:"agents_waiting"`
	AgentsOnCall  int       `json:"agents_on_call"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// AgentStatusProvider reports live agent availability from the PBX.
type AgentStatusProvider interface {
	GetStatus(ctx context.Context, tenantID, routingGroup string) (AgentStatus, error)
}

// Call outcome values carried in journey context data and call attempts.
// Shared vocabulary between the PBX webhook, journey conditions and the
// dialer; keep in sync with provider mappings in the adapters.
const (
	OutcomeAnswered  = "answered"
	OutcomeNoAnswer  = "no_answer"
	OutcomeBusy      = "busy"
	OutcomeVoicemail = "voicemail"
	OutcomeFailed    = "failed"
)
