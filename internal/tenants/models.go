package tenants

import (
	"fmt"
	"time"
)

// Settings holds per-tenant outbound dialing configuration. One row per
// tenant; missing rows fall back to Defaults.
type Settings struct {
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Timezone is an IANA name ("America/New_York"); wall-clock scheduling
	// and business hours resolve in it.
	Timezone string `json:"timezone" db:"timezone"`

	DialEnabled bool `json:"dial_enabled" db:"dial_enabled"`
	// Speed is the dial multiplier: calls placed per waiting agent.
	Speed float64 `json:"speed" db:"speed"`
	// MinAgentsAvailable gates pacing entirely below this head count.
	MinAgentsAvailable int `json:"min_agents_available" db:"min_agents_available"`
	// MaxConcurrentCalls caps in-flight outbound calls per tenant.
	MaxConcurrentCalls int `json:"max_concurrent_calls" db:"max_concurrent_calls"`

	// RoutingGroup scopes which agents count toward availability.
	RoutingGroup string `json:"routing_group" db:"routing_group"`
	// TransferNumber receives connected calls.
	TransferNumber string `json:"transfer_number" db:"transfer_number"`

	// DIDStrategy selects the caller-ID rotation policy.
	DIDStrategy string `json:"did_strategy" db:"did_strategy"`
	// DialOrder sequences dialable leads (oldest_first, fewest_attempts).
	DialOrder string `json:"dial_order" db:"dial_order"`

	BusinessHours BusinessHours `json:"business_hours" db:"business_hours"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BusinessHours is a daily window in the tenant's local time.
type BusinessHours struct {
	Start    string         `json:"start"` // "09:00"
	End      string         `json:"end"`   // "20:00"
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

// Defaults returns settings for tenants with no stored row: dialing off,
// conservative pace, US business hours Monday through Friday.
func Defaults(tenantID string) Settings {
	return Settings{
		TenantID:           tenantID,
		Timezone:           "UTC",
		DialEnabled:        false,
		Speed:              1.0,
		MinAgentsAvailable: 1,
		MaxConcurrentCalls: 25,
		DIDStrategy:        "even",
		DialOrder:          "oldest_first",
		BusinessHours: BusinessHours{
			Start:    "09:00",
			End:      "20:00",
			Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		},
	}
}

// Location resolves the tenant timezone, falling back to UTC on a bad name.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Within reports whether now falls inside the business-hours window,
// evaluated in loc.
func (h BusinessHours) Within(now time.Time, loc *time.Location) bool {
	if h.Start == "" || h.End == "" {
		return true
	}
	local := now.In(loc)

	if len(h.Weekdays) > 0 {
		ok := false
		for _, d := range h.Weekdays {
			if local.Weekday() == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	start, err1 := minutesOfDay(h.Start)
	end, err2 := minutesOfDay(h.End)
	if err1 != nil || err2 != nil {
		return true
	}
	cur := local.Hour()*60 + local.Minute()
	return cur >= start && cur < end
}

func minutesOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("tenants: bad time of day %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
