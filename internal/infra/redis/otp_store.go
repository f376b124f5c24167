package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/ports/repository"
)

var _ repository.OTPStore = (*OTPStore)(nil)

// OTPStore keeps one code per contact address with a TTL.
type OTPStore struct {
	client RedisClient
}

func NewOTPStore(client RedisClient) *OTPStore {
	return &OTPStore{client: client}
}

func otpKey(contact string) string {
	return fmt.Sprintf("otp:%s", strings.ToLower(strings.TrimSpace(contact)))
}

func (s *OTPStore) Set(ctx context.Context, contact string, code *repository.OTPCode, ttl time.Duration) error {
	b, err := json.Marshal(code)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, otpKey(contact), b, ttl)
}

func (s *OTPStore) Get(ctx context.Context, contact string) (*repository.OTPCode, error) {
	val, err := s.client.Get(ctx, otpKey(contact))
	if IsMiss(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var code repository.OTPCode
	if err := json.Unmarshal([]byte(val), &code); err != nil {
		// unreadable entries are treated as absent
		_ = s.client.Del(ctx, otpKey(contact))
		return nil, domain.ErrNotFound
	}
	return &code, nil
}

func (s *OTPStore) Expire(ctx context.Context, contact string) error {
	return s.client.Del(ctx, otpKey(contact))
}
