package dialer

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("dialer: not found")
	ErrInvalidArgument = errors.New("dialer: invalid argument")
	// ErrNoUsableDID is returned when a tenant has no active DIDs to
	// present as caller ID.
	ErrNoUsableDID = errors.New("dialer: no usable DID")
)

// DID is an owned outbound phone number presented as caller ID.
//
// UsageCount is incremented atomically in storage; selection strategies
// read it but never write it.
type DID struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Phone is E.164.
	Phone string `json:"phone" db:"phone"`
	// State is the two-letter US state the number belongs to. Filled from
	// the area code at creation when the operator leaves it blank.
	State    string `json:"state,omitempty" db:"state"`
	IsActive bool   `json:"is_active" db:"is_active"`

	UsageCount int64      `json:"usage_count" db:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Strategy selects which DID fronts an outbound call.
type Strategy string

const (
	// StrategyEven spreads load by lowest usage count.
	StrategyEven Strategy = "even"
	// StrategyRoundRobin cycles by least recently used.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyRandom picks uniformly.
	StrategyRandom Strategy = "random"
	// StrategyGeographic prefers a DID whose area code matches the lead,
	// then one in the lead's state, falling back to even.
	StrategyGeographic Strategy = "geographic"
)

// ParseStrategy maps a settings string to a Strategy, defaulting to even.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategyRoundRobin, StrategyRandom, StrategyGeographic:
		return Strategy(s)
	default:
		return StrategyEven
	}
}

// CallAttempt records one outbound placement. Outcome starts empty and is
// filled in by the call-events webhook.
type CallAttempt struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	LeadID string `json:"lead_id" db:"lead_id"`
	DIDID  string `json:"did_id" db:"did_id"`

	LeadPhone string `json:"lead_phone" db:"lead_phone"`
	CallerID  string `json:"caller_id" db:"caller_id"`

	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`
	Outcome        string `json:"outcome,omitempty" db:"outcome"`

	PlacedAt time.Time  `json:"placed_at" db:"placed_at"`
	EndedAt  *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}
