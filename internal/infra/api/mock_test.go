//go:build !integration

package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nexus-billing/internal/config"
	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/infra/api"
	"nexus-billing/internal/usecase"
)

type MockPaymentUC struct {
	CreateCheckoutFunc func(ctx context.Context, in usecase.CheckoutInput) (*usecase.CheckoutResult, error)
	ListForUserFunc    func(ctx context.Context, userID string) ([]*usecase.UserPayment, error)
	GetForUserFunc     func(ctx context.Context, userID, externalID string) (*model.Payment, error)
	ListPurchasesFunc  func(ctx context.Context, userID string) ([]*model.Purchase, error)
	ListServicesFunc   func(ctx context.Context) ([]*model.Service, error)
	AdminListFunc      func(ctx context.Context, f model.PaymentFilter) (*usecase.Page[*model.Payment], error)
	AdminGetFunc       func(ctx context.Context, id string) (*model.Payment, error)
	ByStatusFunc       func(ctx context.Context, status string, page, limit int) (*usecase.Page[*model.Payment], error)
	OverrideStatusFunc func(ctx context.Context, adminID, id, target, notes string) (*model.Payment, error)
	AnalyticsFunc      func(ctx context.Context) (*model.PaymentAnalytics, error)
}

var _ usecase.PaymentUseCase = (*MockPaymentUC)(nil)

func (m *MockPaymentUC) CreateCheckout(ctx context.Context, in usecase.CheckoutInput) (*usecase.CheckoutResult, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, in)
	}
	return &usecase.CheckoutResult{PaymentID: "p1", SessionID: "cs_1", URL: "https://pay/cs_1"}, nil
}

func (m *MockPaymentUC) ListForUser(ctx context.Context, userID string) ([]*usecase.UserPayment, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockPaymentUC) GetForUser(ctx context.Context, userID, externalID string) (*model.Payment, error) {
	if m.GetForUserFunc != nil {
		return m.GetForUserFunc(ctx, userID, externalID)
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentUC) ListPurchases(ctx context.Context, userID string) ([]*model.Purchase, error) {
	if m.ListPurchasesFunc != nil {
		return m.ListPurchasesFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockPaymentUC) ListServices(ctx context.Context) ([]*model.Service, error) {
	if m.ListServicesFunc != nil {
		return m.ListServicesFunc(ctx)
	}
	return nil, nil
}

func (m *MockPaymentUC) AdminList(ctx context.Context, f model.PaymentFilter) (*usecase.Page[*model.Payment], error) {
	if m.AdminListFunc != nil {
		return m.AdminListFunc(ctx, f)
	}
	return &usecase.Page[*model.Payment]{Items: []*model.Payment{}, Page: f.Page, Limit: f.Limit}, nil
}

func (m *MockPaymentUC) AdminGet(ctx context.Context, id string) (*model.Payment, error) {
	if m.AdminGetFunc != nil {
		return m.AdminGetFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentUC) ByStatus(ctx context.Context, status string, page, limit int) (*usecase.Page[*model.Payment], error) {
	if m.ByStatusFunc != nil {
		return m.ByStatusFunc(ctx, status, page, limit)
	}
	return &usecase.Page[*model.Payment]{}, nil
}

func (m *MockPaymentUC) OverrideStatus(ctx context.Context, adminID, id, target, notes string) (*model.Payment, error) {
	if m.OverrideStatusFunc != nil {
		return m.OverrideStatusFunc(ctx, adminID, id, target, notes)
	}
	return &model.Payment{ID: id, Status: model.PaymentStatus(target)}, nil
}

func (m *MockPaymentUC) Analytics(ctx context.Context) (*model.PaymentAnalytics, error) {
	if m.AnalyticsFunc != nil {
		return m.AnalyticsFunc(ctx)
	}
	return &model.PaymentAnalytics{}, nil
}

type MockRefundUC struct {
	RequestFunc     func(ctx context.Context, userID, paymentID, reason string, amount int64) (*model.Refund, error)
	ListForUserFunc func(ctx context.Context, userID string) ([]*model.Refund, error)
	AdminListFunc   func(ctx context.Context, f model.RefundFilter) (*usecase.Page[*model.Refund], error)
	AdminGetFunc    func(ctx context.Context, id string) (*model.Refund, error)
	StatsFunc       func(ctx context.Context) (*model.RefundStats, error)
	DecideFunc      func(ctx context.Context, adminID, id, target, notes string) (*model.Refund, error)
	CheckStatusFunc func(ctx context.Context, id string) (*usecase.RefundCheck, error)
}

var _ usecase.RefundUseCase = (*MockRefundUC)(nil)

func (m *MockRefundUC) Request(ctx context.Context, userID, paymentID, reason string, amount int64) (*model.Refund, error) {
	if m.RequestFunc != nil {
		return m.RequestFunc(ctx, userID, paymentID, reason, amount)
	}
	return &model.Refund{ID: "r1", PaymentID: paymentID, UserID: userID, Reason: reason, Status: model.RefundStatusPending}, nil
}

func (m *MockRefundUC) ListForUser(ctx context.Context, userID string) ([]*model.Refund, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockRefundUC) AdminList(ctx context.Context, f model.RefundFilter) (*usecase.Page[*model.Refund], error) {
	if m.AdminListFunc != nil {
		return m.AdminListFunc(ctx, f)
	}
	return &usecase.Page[*model.Refund]{Items: []*model.Refund{}}, nil
}

func (m *MockRefundUC) AdminGet(ctx context.Context, id string) (*model.Refund, error) {
	if m.AdminGetFunc != nil {
		return m.AdminGetFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *MockRefundUC) Stats(ctx context.Context) (*model.RefundStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &model.RefundStats{}, nil
}

func (m *MockRefundUC) Decide(ctx context.Context, adminID, id, target, notes string) (*model.Refund, error) {
	if m.DecideFunc != nil {
		return m.DecideFunc(ctx, adminID, id, target, notes)
	}
	return &model.Refund{ID: id, Status: model.RefundStatus(target)}, nil
}

func (m *MockRefundUC) CheckStatus(ctx context.Context, id string) (*usecase.RefundCheck, error) {
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, id)
	}
	return nil, domain.ErrNoExternalRefund
}

type MockWebhookUC struct {
	HandleFunc func(ctx context.Context, payload []byte, signature string) error
}

func (m *MockWebhookUC) Handle(ctx context.Context, payload []byte, signature string) error {
	if m.HandleFunc != nil {
		return m.HandleFunc(ctx, payload, signature)
	}
	return nil
}

type MockOTPUC struct {
	RequestFunc func(ctx context.Context, contact string) (*usecase.OTPChallenge, error)
	VerifyFunc  func(ctx context.Context, contact, code string) error
}

func (m *MockOTPUC) Request(ctx context.Context, contact string) (*usecase.OTPChallenge, error) {
	if m.RequestFunc != nil {
		return m.RequestFunc(ctx, contact)
	}
	return &usecase.OTPChallenge{ID: "01TEST", ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
}

func (m *MockOTPUC) Verify(ctx context.Context, contact, code string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, contact, code)
	}
	return nil
}

type MockSweeper struct {
	RunOnceFunc func(ctx context.Context) (*usecase.SweepResult, error)
}

func (m *MockSweeper) RunOnce(ctx context.Context) (*usecase.SweepResult, error) {
	if m.RunOnceFunc != nil {
		return m.RunOnceFunc(ctx)
	}
	return &usecase.SweepResult{}, nil
}

// =============================
// Harness
// =============================

type harness struct {
	payments *MockPaymentUC
	refunds  *MockRefundUC
	webhooks *MockWebhookUC
	otp      *MockOTPUC
	sweeper  *MockSweeper
	auth     *api.Authenticator
	opts     api.Options
}

func newHarness() *harness {
	return &harness{
		payments: &MockPaymentUC{},
		refunds:  &MockRefundUC{},
		webhooks: &MockWebhookUC{},
		otp:      &MockOTPUC{},
		sweeper:  &MockSweeper{},
		auth: api.NewAuthenticator(config.AuthConfig{
			JWTSecret: "test-secret", Issuer: "nexus-billing", CookieName: "token", TokenTTL: time.Hour,
		}),
		opts: api.Options{RequestTimeout: 5 * time.Second, WebhookMaxBytes: 1024},
	}
}

func (h *harness) router() http.Handler {
	logger := zerolog.New(io.Discard)
	return api.NewServer(h.payments, h.refunds, h.webhooks, h.otp, h.sweeper, h.auth, h.opts, &logger).Router()
}

func (h *harness) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := h.auth.Mint(userID, userID+"@example.com", "Test User", role)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return tok
}

// do sends body (may be empty) with an optional bearer token.
func (h *harness) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router().ServeHTTP(rec, req)
	return rec
}
