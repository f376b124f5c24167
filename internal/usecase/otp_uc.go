package usecase

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/ports/adapter"
	"nexus-billing/internal/domain/ports/repository"
	"nexus-billing/internal/infra/logging"
	"nexus-billing/internal/infra/metrics"
)

var _ OTPUseCase = (*otpUC)(nil)

// OTPUseCase issues and checks short-lived numeric codes bound to a contact address.
type OTPUseCase interface {
	Request(ctx context.Context, contact string) (*OTPChallenge, error)
	// Verify consumes the code on success.
	Verify(ctx context.Context, contact, code string) error
}

// RateLimiter counts requests per key in a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type OTPPolicy struct {
	TTL         time.Duration
	MaxRequests int
	Window      time.Duration
	Dev         bool
}

type OTPChallenge struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

const otpDigits = 6

type otpUC struct {
	store   repository.OTPStore
	limiter RateLimiter
	sender  adapter.CodeSender
	policy  OTPPolicy
	log     *zerolog.Logger
}

func NewOTPUseCase(store repository.OTPStore, limiter RateLimiter, sender adapter.CodeSender, policy OTPPolicy, logger *zerolog.Logger) *otpUC {
	if policy.TTL <= 0 {
		policy.TTL = 10 * time.Minute
	}
	if policy.MaxRequests <= 0 {
		policy.MaxRequests = 5
	}
	if policy.Window <= 0 {
		policy.Window = 15 * time.Minute
	}
	return &otpUC{store: store, limiter: limiter, sender: sender, policy: policy, log: logger}
}

func normalizeContact(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

func (u *otpUC) Request(ctx context.Context, contact string) (*OTPChallenge, error) {
	defer logging.TraceDuration(u.log, "OTPUC.Request")()

	contact = normalizeContact(contact)
	if contact == "" {
		return nil, domain.ErrInvalidArgument
	}
	log := u.log.With().Str("contact", logging.Redact(contact, u.policy.Dev)).Logger()

	allowed, err := u.limiter.Allow(ctx, "rate_limit:otp:"+contact, u.policy.MaxRequests, u.policy.Window)
	if err != nil {
		metrics.IncOTP("request", "error")
		return nil, err
	}
	if !allowed {
		metrics.IncOTP("request", "rate_limited")
		log.Warn().Msg("otp request rate limited")
		return nil, domain.ErrRateLimited
	}

	code, err := randomDigits(otpDigits)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &repository.OTPCode{ID: ulid.Make().String(), Code: code, IssuedAt: now}
	if err := u.store.Set(ctx, contact, rec, u.policy.TTL); err != nil {
		metrics.IncOTP("request", "error")
		return nil, err
	}
	if err := u.sender.Send(ctx, contact, code); err != nil {
		metrics.IncOTP("request", "send_error")
		log.Error().Err(err).Msg("otp delivery failed")
		return nil, err
	}

	metrics.IncOTP("request", "issued")
	log.Info().Str("otp_id", rec.ID).Msg("otp issued")
	return &OTPChallenge{ID: rec.ID, ExpiresAt: now.Add(u.policy.TTL)}, nil
}

func (u *otpUC) Verify(ctx context.Context, contact, code string) error {
	defer logging.TraceDuration(u.log, "OTPUC.Verify")()

	contact = normalizeContact(contact)
	code = strings.TrimSpace(code)
	if contact == "" || code == "" {
		return domain.ErrInvalidArgument
	}

	rec, err := u.store.Get(ctx, contact)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncOTP("verify", "expired")
		return domain.ErrOTPExpired
	}
	if err != nil {
		metrics.IncOTP("verify", "error")
		return err
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		metrics.IncOTP("verify", "mismatch")
		return domain.ErrOTPMismatch
	}
	if err := u.store.Expire(ctx, contact); err != nil {
		u.log.Warn().Err(err).Str("otp_id", rec.ID).Msg("otp not expired after use")
	}
	metrics.IncOTP("verify", "ok")
	return nil
}

func randomDigits(n int) (string, error) {
	b := make([]byte, n)
	ten := big.NewInt(10)
	for i := range b {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b[i] = byte('0' + d.Int64())
	}
	return string(b), nil
}
