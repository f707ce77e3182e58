package messaging

import (
	"context"

	"outreach-platform/internal/registry"
)

// TenantSenders routes sends through per-tenant gateway clients. Tenants
// can carry their own gateway credentials; the build function decides
// whether to hand back a shared client or a tenant-specific one.
type TenantSenders struct {
	clients *registry.Cache[*GatewayClient]
}

func NewTenantSenders(build registry.BuildFunc[*GatewayClient]) *TenantSenders {
	return &TenantSenders{clients: registry.New(build)}
}

func (t *TenantSenders) SendSMS(ctx context.Context, tenantID, to, body string) (string, error) {
	client, err := t.clients.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return client.SendSMS(ctx, tenantID, to, body)
}

func (t *TenantSenders) SendEmail(ctx context.Context, tenantID, to, subject, body string) error {
	client, err := t.clients.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	return client.SendEmail(ctx, tenantID, to, subject, body)
}

// Invalidate drops a tenant's cached client after a credential change.
func (t *TenantSenders) Invalidate(tenantID string) {
	t.clients.Invalidate(tenantID)
}
