package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStatusProvider wraps an AgentStatusProvider with a short-TTL
// Redis cache. Pacer ticks across many tenants would otherwise hammer
// the PBX status endpoint; a few seconds of staleness is acceptable for
// pacing decisions.
type CachedStatusProvider struct {
	inner AgentStatusProvider
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedStatusProvider(inner AgentStatusProvider, rdb *redis.Client, ttl time.Duration) *CachedStatusProvider {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CachedStatusProvider{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedStatusProvider) GetStatus(ctx context.Context, tenantID, routingGroup string) (AgentStatus, error) {
	key := statusKey(tenantID, routingGroup)

	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var cached AgentStatus
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	status, err := c.inner.GetStatus(ctx, tenantID, routingGroup)
	if err != nil {
		return AgentStatus{}, err
	}

	// Cache write is best-effort; a Redis hiccup must not block pacing.
	if c.rdb != nil {
		if raw, err := json.Marshal(status); err == nil {
			c.rdb.Set(ctx, key, raw, c.ttl)
		}
	}
	return status, nil
}

func statusKey(tenantID, routingGroup string) string {
	if routingGroup == "" {
		return fmt.Sprintf("agents:status:%s", tenantID)
	}
	return fmt.Sprintf("agents:status:%s:%s", tenantID, routingGroup)
}
