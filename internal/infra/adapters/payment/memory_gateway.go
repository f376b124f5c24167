package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*MemoryGateway)(nil)

// MemoryGateway is an in-process gateway for dev mode and tests.
// Refunds start pending; tests drive them with SetRefundStatus.
type MemoryGateway struct {
	mu         sync.Mutex
	seq        int64
	sessions   map[string]*adapter.CheckoutSession
	refunds    map[string]*adapter.GatewayRefund
	idempotent map[string]string // idempotency key -> refund id
	failOps    map[string]error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		sessions:   make(map[string]*adapter.CheckoutSession),
		refunds:    make(map[string]*adapter.GatewayRefund),
		idempotent: make(map[string]string),
		failOps:    make(map[string]error),
	}
}

func (g *MemoryGateway) Name() string { return "memory" }

func (g *MemoryGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_mem_%d", prefix, g.seq)
}

// FailNext makes the next call of op ("create_checkout", "retrieve_checkout",
// "create_refund", "retrieve_refund") fail.
func (g *MemoryGateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failOps[op] = err
}

func (g *MemoryGateway) takeFailure(op string) error {
	if err, ok := g.failOps[op]; ok {
		delete(g.failOps, op)
		return errors.Wrapf(domain.ErrGatewayFailure, "memory %s: %v", op, err)
	}
	return nil
}

// PutSession registers a session as if it had been created earlier.
func (g *MemoryGateway) PutSession(s adapter.CheckoutSession) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s.ID] = &s
}

func (g *MemoryGateway) SetRefundStatus(refundID string, st model.GatewayRefundStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.refunds[refundID]; ok {
		r.Status = st
	}
}

// RefundCount reports how many distinct refunds were created.
func (g *MemoryGateway) RefundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

func (g *MemoryGateway) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("create_checkout"); err != nil {
		return nil, err
	}
	if req.Amount <= 0 || req.SuccessURL == "" || req.CancelURL == "" {
		return nil, errors.Wrap(domain.ErrGatewayFailure, "memory create_checkout: invalid request")
	}
	id := g.next("cs")
	s := &adapter.CheckoutSession{ID: id, URL: "https://checkout.example.test/" + id, PaymentStatus: model.SessionUnpaid}
	g.sessions[id] = s
	out := *s
	return &out, nil
}

func (g *MemoryGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*adapter.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("retrieve_checkout"); err != nil {
		return nil, err
	}
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrGatewayFailure, "memory: no such checkout session %s", sessionID)
	}
	out := *s
	return &out, nil
}

func (g *MemoryGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (*adapter.GatewayRefund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("create_refund"); err != nil {
		return nil, err
	}
	if req.PaymentIntentID == "" {
		return nil, errors.Wrap(domain.ErrGatewayFailure, "memory create_refund: payment intent required")
	}
	if id, ok := g.idempotent[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		out := *g.refunds[id]
		return &out, nil
	}
	r := &adapter.GatewayRefund{ID: g.next("re"), Status: model.GatewayRefundPending, Amount: req.Amount}
	g.refunds[r.ID] = r
	if req.IdempotencyKey != "" {
		g.idempotent[req.IdempotencyKey] = r.ID
	}
	out := *r
	return &out, nil
}

func (g *MemoryGateway) RetrieveRefund(ctx context.Context, refundID string) (*adapter.GatewayRefund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("retrieve_refund"); err != nil {
		return nil, err
	}
	r, ok := g.refunds[refundID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrGatewayFailure, "memory: no such refund %s", refundID)
	}
	out := *r
	return &out, nil
}
