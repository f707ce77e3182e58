package messaging

import "context"

// SMSSender delivers a text message through the provider gateway.
//
// Rules mirror the telephony adapters: no provider SDK calls outside
// messaging adapters, tenant-scoped requests, provider-agnostic types.
type SMSSender interface {
	SendSMS(ctx context.Context, tenantID, to, body string) (MessageID string, err error)
}

// EmailSender delivers an email through the provider gateway.
type EmailSender interface {
	SendEmail(ctx context.Context, tenantID, to, subject, body string) error
}
