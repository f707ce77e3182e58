package dialer

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo backs tests.
type MemoryRepo struct {
	mu       sync.Mutex
	dids     map[string]DID
	attempts []CallAttempt
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{dids: make(map[string]DID)}
}

func (r *MemoryRepo) CreateDID(ctx context.Context, d DID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dids[d.ID] = d
	return nil
}

func (r *MemoryRepo) ListActiveDIDs(ctx context.Context, tenantID string) ([]DID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DID
	for _, d := range r.dids {
		if d.TenantID == tenantID && d.IsActive {
			out = append(out, d)
		}
	}
	sortDIDs(out)
	return out, nil
}

func (r *MemoryRepo) ListDIDs(ctx context.Context, tenantID string) ([]DID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DID
	for _, d := range r.dids {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sortDIDs(out)
	return out, nil
}

func (r *MemoryRepo) SetDIDActive(ctx context.Context, tenantID, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dids[id]
	if !ok || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.IsActive = active
	r.dids[id] = d
	return nil
}

func (r *MemoryRepo) IncrementDIDUsage(ctx context.Context, tenantID, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dids[id]
	if !ok || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.UsageCount++
	t := at
	d.LastUsedAt = &t
	r.dids[id] = d
	return nil
}

func (r *MemoryRepo) InsertAttempt(ctx context.Context, a CallAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *MemoryRepo) SetAttemptOutcome(ctx context.Context, tenantID, providerCallID, outcome string, endedAt time.Time) (CallAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.attempts {
		a := &r.attempts[i]
		if a.TenantID == tenantID && a.ProviderCallID == providerCallID {
			a.Outcome = outcome
			t := endedAt
			a.EndedAt = &t
			return *a, nil
		}
	}
	return CallAttempt{}, ErrNotFound
}

func (r *MemoryRepo) ListAttemptsByLead(ctx context.Context, tenantID, leadID string, limit int) ([]CallAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallAttempt
	for _, a := range r.attempts {
		if a.TenantID == tenantID && a.LeadID == leadID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].PlacedAt.After(out[b].PlacedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Attempts returns every recorded attempt; test helper.
func (r *MemoryRepo) Attempts() []CallAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

func sortDIDs(dids []DID) {
	sort.Slice(dids, func(a, b int) bool {
		if dids[a].CreatedAt.Equal(dids[b].CreatedAt) {
			return dids[a].ID < dids[b].ID
		}
		return dids[a].CreatedAt.Before(dids[b].CreatedAt)
	})
}
