//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/adapter"
	"nexus-billing/internal/infra/adapters/payment"
	"nexus-billing/internal/usecase"
)

type deps struct {
	payments  *MockPaymentRepo
	refunds   *MockRefundRepo
	purchases *MockPurchaseRepo
	services  *MockServiceRepo
	receipts  *MockReceipts
	tm        *MockTxManager
	gateway   *payment.MemoryGateway
	log       *zerolog.Logger
}

func newDeps(t *testing.T) *deps {
	t.Helper()
	svc, err := model.NewService(7, "Visa consultation", "visa", "J. Doe", "60 min", "$1,299.50")
	if err != nil {
		t.Fatalf("service fixture: %v", err)
	}
	return &deps{
		payments:  NewMockPaymentRepo(),
		refunds:   NewMockRefundRepo(),
		purchases: NewMockPurchaseRepo(),
		services:  NewMockServiceRepo(svc),
		receipts:  NewMockReceipts(),
		tm:        NewMockTxManager(),
		gateway:   payment.NewMemoryGateway(),
		log:       newTestLogger(),
	}
}

func (d *deps) paymentUC() usecase.PaymentUseCase {
	return usecase.NewPaymentUseCase(d.payments, d.refunds, d.purchases, d.services, d.gateway, d.tm, "USD", d.log)
}

func (d *deps) refundUC() usecase.RefundUseCase {
	return usecase.NewRefundUseCase(d.refunds, d.payments, d.purchases, d.gateway, d.tm, d.log)
}

func (d *deps) webhookUC(v adapter.WebhookVerifier) usecase.WebhookUseCase {
	return usecase.NewWebhookUseCase(v, d.payments, d.refunds, d.purchases, d.receipts, d.tm, time.Hour, d.log)
}

// seedPayment stores a payment for user u1 on service 7. An empty intent leaves it unset.
func (d *deps) seedPayment(t *testing.T, session string, status model.PaymentStatus, intent string) *model.Payment {
	t.Helper()
	svc, _ := d.services.FindByID(context.Background(), nil, 7)
	p, err := model.NewPayment("u1", svc.Snapshot(), session, 129950, "usd")
	if err != nil {
		t.Fatalf("payment fixture: %v", err)
	}
	p.Status = status
	if intent != "" {
		p.PaymentIntentID = lo.ToPtr(intent)
	}
	p.Metadata = map[string]string{"userId": "u1", "serviceId": "7"}
	if err := d.payments.Save(context.Background(), nil, p); err != nil {
		t.Fatalf("save payment: %v", err)
	}
	if status == model.PaymentStatusSucceeded {
		_, _ = d.purchases.SaveAll(context.Background(), nil, model.PurchasesForPayment(p))
	}
	return p
}

func (d *deps) seedRefund(t *testing.T, p *model.Payment, status model.RefundStatus, externalID string) *model.Refund {
	t.Helper()
	r, err := model.NewRefund(p, p.UserID, "changed my mind", 0)
	if err != nil {
		t.Fatalf("refund fixture: %v", err)
	}
	r.Status = status
	if externalID != "" {
		r.ExternalID = lo.ToPtr(externalID)
	}
	if err := d.refunds.Save(context.Background(), nil, r); err != nil {
		t.Fatalf("save refund: %v", err)
	}
	return r
}

// gatewayRefund registers a refund at the memory gateway and sets its status.
func (d *deps) gatewayRefund(t *testing.T, intent string, st model.GatewayRefundStatus) string {
	t.Helper()
	gr, err := d.gateway.CreateRefund(context.Background(), adapter.RefundRequest{PaymentIntentID: intent, Amount: 100})
	if err != nil {
		t.Fatalf("gateway refund fixture: %v", err)
	}
	d.gateway.SetRefundStatus(gr.ID, st)
	return gr.ID
}
