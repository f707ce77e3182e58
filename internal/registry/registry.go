package registry

import (
	"context"
	"sync"
)

// BuildFunc constructs a tenant's integration client.
type BuildFunc[T any] func(ctx context.Context, tenantID string) (T, error)

// Cache lazily builds and holds one integration client per tenant.
// Invalidate drops a tenant's client so the next Get rebuilds it, for
// example after the tenant rotates gateway credentials.
type Cache[T any] struct {
	mu      sync.RWMutex
	build   BuildFunc[T]
	clients map[string]T
}

func New[T any](build BuildFunc[T]) *Cache[T] {
	return &Cache[T]{build: build, clients: make(map[string]T)}
}

func (c *Cache[T]) Get(ctx context.Context, tenantID string) (T, error) {
	c.mu.RLock()
	client, ok := c.clients[tenantID]
	c.mu.RUnlock()
	if ok {
		return client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[tenantID]; ok {
		return client, nil
	}
	client, err := c.build(ctx, tenantID)
	if err != nil {
		var zero T
		return zero, err
	}
	c.clients[tenantID] = client
	return client, nil
}

func (c *Cache[T]) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, tenantID)
}
