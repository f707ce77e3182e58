package journey

import (
	"time"

	"outreach-platform/internal/leads"
)

// MatchesCriteria evaluates a journey's trigger criteria against a lead.
// Empty criteria fields are treated as "no constraint"; all configured
// fields must match.
//
// Pure function: the enrollment sweep calls it once per candidate lead,
// and handlers reuse it for criteria preview.
func MatchesCriteria(lead leads.Lead, c Criteria, now time.Time) bool {
	if len(c.LeadStatus) > 0 && !containsString(c.LeadStatus, string(lead.Status)) {
		return false
	}
	if len(c.Brands) > 0 && !containsString(c.Brands, lead.Brand) {
		return false
	}
	if len(c.Sources) > 0 && !containsString(c.Sources, lead.Source) {
		return false
	}
	for _, tag := range c.LeadTags {
		if !lead.HasTag(tag) {
			return false
		}
	}
	if c.AgeDays != nil {
		age := lead.AgeDays(now)
		if c.AgeDays.Min != nil && age < *c.AgeDays.Min {
			return false
		}
		if c.AgeDays.Max != nil && age > *c.AgeDays.Max {
			return false
		}
	}
	return true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
