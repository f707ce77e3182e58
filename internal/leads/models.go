package leads

import "time"

// Lead is the CRM-owned contact record. This platform reads leads for
// enrollment/dialing and mutates only a narrow surface: status, tags, and
// the dial attempt counter.
//
// Multi-tenant invariant: TenantID is required on every row.
type Lead struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Phone is E.164 where possible.
	Phone string `json:"phone" db:"phone"`
	Email string `json:"email,omitempty" db:"email"`

	Status LeadStatus `json:"status" db:"status"`

	// Tags live inside the CRM's free-form attributes blob; stored as JSONB.
	Tags []string `json:"tags" db:"tags"`

	Brand  string `json:"brand,omitempty" db:"brand"`
	Source string `json:"source,omitempty" db:"source"`

	// Assignments lists which dialing channels may work this lead.
	Assignments []string `json:"assignments" db:"assignments"`

	AttemptCount  int        `json:"attempt_count" db:"attempt_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type LeadStatus string

const (
	LeadStatusPending   LeadStatus = "pending"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusCompleted LeadStatus = "completed"
	LeadStatusDNC       LeadStatus = "dnc"
	LeadStatusDead      LeadStatus = "dead"
)

// AssignmentAutoDialer marks a lead as workable by the predictive dialer.
const AssignmentAutoDialer = "auto_dialer"

// AgeDays returns the lead age in whole days at the given instant.
func (l Lead) AgeDays(now time.Time) int {
	if l.CreatedAt.IsZero() || now.Before(l.CreatedAt) {
		return 0
	}
	return int(now.Sub(l.CreatedAt).Hours() / 24)
}

// HasTag reports whether the lead carries the given tag.
func (l Lead) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AssignedTo reports whether the lead is assigned to the given dial channel.
func (l Lead) AssignedTo(channel string) bool {
	for _, a := range l.Assignments {
		if a == channel {
			return true
		}
	}
	return false
}

// DialOrder selects the fetch ordering policy for dialable leads.
type DialOrder string

const (
	DialOrderOldestFirst    DialOrder = "oldest_first"
	DialOrderFewestAttempts DialOrder = "fewest_attempts"
)

// CandidateFilter is the indexable subset of journey trigger criteria.
// Non-indexable parts (tags, age bounds) are applied in memory by the caller.
type CandidateFilter struct {
	Statuses []LeadStatus
	Brands   []string
	Sources  []string
	Limit    int
}
