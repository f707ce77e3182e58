package leads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu    sync.Mutex
	rows  map[string]Lead // keyed by lead ID
	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]Lead), clock: time.Now}
}

// Put seeds or replaces a lead.
func (r *MemoryRepo) Put(l Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[l.ID] = l
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, leadID string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[leadID]
	if !ok || l.TenantID != tenantID {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) ListCandidates(ctx context.Context, tenantID string, f CandidateFilter) ([]Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Lead
	for _, l := range r.rows {
		if l.TenantID != tenantID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, l.Status) {
			continue
		}
		if len(f.Brands) > 0 && !containsString(f.Brands, l.Brand) {
			continue
		}
		if len(f.Sources) > 0 && !containsString(f.Sources, l.Source) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListDialable(ctx context.Context, tenantID string, cutoff time.Time, order DialOrder, limit int) ([]Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Lead
	for _, l := range r.rows {
		if l.TenantID != tenantID {
			continue
		}
		if l.Status != LeadStatusPending {
			continue
		}
		if !l.AssignedTo(AssignmentAutoDialer) {
			continue
		}
		if l.LastAttemptAt != nil && !l.LastAttemptAt.Before(cutoff) {
			continue
		}
		out = append(out, l)
	}

	switch order {
	case DialOrderFewestAttempts:
		sort.Slice(out, func(i, j int) bool { return out[i].AttemptCount < out[j].AttemptCount })
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, tenantID, leadID string, status LeadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[leadID]
	if !ok || l.TenantID != tenantID {
		return ErrNotFound
	}
	l.Status = status
	l.UpdatedAt = r.clock().UTC()
	r.rows[leadID] = l
	return nil
}

func (r *MemoryRepo) AddTags(ctx context.Context, tenantID, leadID string, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[leadID]
	if !ok || l.TenantID != tenantID {
		return ErrNotFound
	}
	for _, t := range tags {
		if !l.HasTag(t) {
			l.Tags = append(l.Tags, t)
		}
	}
	l.UpdatedAt = r.clock().UTC()
	r.rows[leadID] = l
	return nil
}

func (r *MemoryRepo) IncrementAttempts(ctx context.Context, tenantID, leadID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[leadID]
	if !ok || l.TenantID != tenantID {
		return ErrNotFound
	}
	l.AttemptCount++
	t := at
	l.LastAttemptAt = &t
	l.UpdatedAt = r.clock().UTC()
	r.rows[leadID] = l
	return nil
}

func containsStatus(set []LeadStatus, v LeadStatus) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
