package repository

import (
	"context"
	"time"
)

// OTPStore is a keyed expiring store of one-time codes, shared across instances.
type OTPStore interface {
	// Set stores the code for contact, replacing any previous one.
	Set(ctx context.Context, contact string, code *OTPCode, ttl time.Duration) error
	// Get returns domain.ErrNotFound when no live code exists.
	Get(ctx context.Context, contact string) (*OTPCode, error)
	// Expire removes the code immediately.
	Expire(ctx context.Context, contact string) error
}

// OTPCode is the stored challenge.
type OTPCode struct {
	ID       string    `json:"id"`
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// WebhookReceiptStore remembers processed gateway event ids.
type WebhookReceiptStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error
}
