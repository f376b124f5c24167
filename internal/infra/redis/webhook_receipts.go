package redis

import (
	"context"
	"fmt"
	"time"

	"nexus-billing/internal/domain/ports/repository"
)

var _ repository.WebhookReceiptStore = (*WebhookReceipts)(nil)

// WebhookReceipts records processed gateway event ids.
type WebhookReceipts struct {
	client RedisClient
}

func NewWebhookReceipts(client RedisClient) *WebhookReceipts {
	return &WebhookReceipts{client: client}
}

func receiptKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

func (w *WebhookReceipts) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	return w.client.Exists(ctx, receiptKey(eventID))
}

func (w *WebhookReceipts) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	if eventID == "" {
		return nil
	}
	return w.client.Set(ctx, receiptKey(eventID), time.Now().UTC().Format(time.RFC3339), ttl)
}
