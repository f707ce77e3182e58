package tenants

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo backs tests.
type MemoryRepo struct {
	mu       sync.Mutex
	settings map[string]Settings
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{settings: make(map[string]Settings)}
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID string) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[tenantID]
	if !ok {
		return Settings{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, s Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[s.TenantID] = s
	return nil
}

func (r *MemoryRepo) ListDialEnabled(ctx context.Context) ([]Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Settings
	for _, s := range r.settings {
		if s.DialEnabled {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].TenantID < out[b].TenantID })
	return out, nil
}
