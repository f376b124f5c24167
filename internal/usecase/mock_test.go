//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/adapter"
	"nexus-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Transactions
// =============================

type MockTxManager struct {
	Calls      int
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.Calls++
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Payments
// =============================

type MockPaymentRepo struct {
	mu   sync.Mutex
	data map[string]*model.Payment

	SaveFunc         func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	UpdateStatusFunc func(ctx context.Context, tx repository.Tx, id string, from []model.PaymentStatus, to model.PaymentStatus, patch model.PaymentPatch) (bool, error)
	FindByIDFunc     func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}}
}

func clonePayment(p *model.Payment) *model.Payment {
	cp := *p
	cp.Metadata = lo.Assign(map[string]string{}, p.Metadata)
	cp.GatewayMetadata = lo.Assign(map[string]string{}, p.GatewayMetadata)
	if p.PaymentIntentID != nil {
		cp.PaymentIntentID = lo.ToPtr(*p.PaymentIntentID)
	}
	return &cp
}

// Get returns the stored copy for assertions, or nil.
func (r *MockPaymentRepo) Get(id string) *model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		return clonePayment(p)
	}
	return nil
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data {
		if existing.ID != p.ID && existing.CheckoutSessionID == p.CheckoutSessionID {
			return domain.ErrAlreadyExists
		}
	}
	r.data[p.ID] = clonePayment(p)
	return nil
}

func (r *MockPaymentRepo) find(match func(p *model.Payment) bool) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.Payment
	for _, p := range r.data {
		if match(p) && (best == nil || p.CreatedAt.After(best.CreatedAt)) {
			best = p
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return clonePayment(best), nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	return r.find(func(p *model.Payment) bool { return p.ID == id })
}

func (r *MockPaymentRepo) FindByCheckoutSession(ctx context.Context, tx repository.Tx, sessionID string) (*model.Payment, error) {
	return r.find(func(p *model.Payment) bool { return sessionID != "" && p.CheckoutSessionID == sessionID })
}

func (r *MockPaymentRepo) FindByPaymentIntent(ctx context.Context, tx repository.Tx, intentID string) (*model.Payment, error) {
	return r.find(func(p *model.Payment) bool { return intentID != "" && p.IntentID() == intentID })
}

func (r *MockPaymentRepo) FindLatestOpen(ctx context.Context, tx repository.Tx, userID string, serviceID int64) (*model.Payment, error) {
	return r.find(func(p *model.Payment) bool {
		return p.UserID == userID && p.ServiceID == serviceID &&
			(p.Status == model.PaymentStatusPending || p.Status == model.PaymentStatusProcessing)
	})
}

func (r *MockPaymentRepo) FindForUserByExternalID(ctx context.Context, tx repository.Tx, userID, externalID string) (*model.Payment, error) {
	return r.find(func(p *model.Payment) bool {
		return p.UserID == userID && (p.IntentID() == externalID || p.CheckoutSessionID == externalID)
	})
}

func (r *MockPaymentRepo) List(ctx context.Context, tx repository.Tx, f model.PaymentFilter) ([]*model.Payment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, p.Status) {
			continue
		}
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (r *MockPaymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from []model.PaymentStatus, to model.PaymentStatus, patch model.PaymentPatch) (bool, error) {
	if r.UpdateStatusFunc != nil {
		return r.UpdateStatusFunc(ctx, tx, id, from, to, patch)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok || !lo.Contains(from, p.Status) {
		return false, nil
	}
	p.Status = to
	if patch.PaymentMethod != nil {
		p.PaymentMethod = *patch.PaymentMethod
	}
	if patch.RefundedAt != nil && p.RefundedAt == nil {
		p.RefundedAt = patch.RefundedAt
	}
	p.GatewayMetadata = lo.Assign(p.GatewayMetadata, patch.GatewayMetadata)
	p.Metadata = lo.Assign(p.Metadata, patch.Metadata)
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockPaymentRepo) SetPaymentIntentIfEmpty(ctx context.Context, tx repository.Tx, id, intentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok || p.HasPaymentIntent() {
		return false, nil
	}
	for _, other := range r.data {
		if other.IntentID() == intentID {
			return false, domain.ErrAlreadyExists
		}
	}
	p.PaymentIntentID = lo.ToPtr(intentID)
	return true, nil
}

func (r *MockPaymentRepo) MergeGatewayMetadata(ctx context.Context, tx repository.Tx, id string, meta map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.GatewayMetadata = lo.Assign(p.GatewayMetadata, meta)
	return nil
}

func (r *MockPaymentRepo) Analytics(ctx context.Context, tx repository.Tx) (*model.PaymentAnalytics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := &model.PaymentAnalytics{}
	for _, p := range r.data {
		a.TotalPayments++
		switch p.Status {
		case model.PaymentStatusSucceeded:
			a.SuccessfulPayments++
			a.TotalRevenue += p.Amount
		case model.PaymentStatusPending:
			a.PendingPayments++
		case model.PaymentStatusFailed:
			a.FailedPayments++
		case model.PaymentStatusRefunded:
			a.RefundedPayments++
			a.TotalRefundAmount += p.Amount
		}
	}
	return a, nil
}

// =============================
// Refunds
// =============================

type MockRefundRepo struct {
	mu   sync.Mutex
	data map[string]*model.Refund

	UpdateFunc func(ctx context.Context, tx repository.Tx, r *model.Refund, from ...model.RefundStatus) (bool, error)
}

var _ repository.RefundRepository = (*MockRefundRepo)(nil)

func NewMockRefundRepo() *MockRefundRepo {
	return &MockRefundRepo{data: map[string]*model.Refund{}}
}

func cloneRefund(r *model.Refund) *model.Refund {
	cp := *r
	if r.ExternalID != nil {
		cp.ExternalID = lo.ToPtr(*r.ExternalID)
	}
	return &cp
}

func (m *MockRefundRepo) Get(id string) *model.Refund {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.data[id]; ok {
		return cloneRefund(r)
	}
	return nil
}

func (m *MockRefundRepo) Save(ctx context.Context, tx repository.Tx, r *model.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.data {
		if other.PaymentID == r.PaymentID && other.Status.Active() {
			return domain.ErrActiveRefundExists
		}
	}
	m.data[r.ID] = cloneRefund(r)
	return nil
}

func (m *MockRefundRepo) find(match func(r *model.Refund) bool) (*model.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Refund
	for _, r := range m.data {
		if match(r) && (best == nil || r.CreatedAt.After(best.CreatedAt)) {
			best = r
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return cloneRefund(best), nil
}

func (m *MockRefundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Refund, error) {
	return m.find(func(r *model.Refund) bool { return r.ID == id })
}

func (m *MockRefundRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Refund, error) {
	return m.find(func(r *model.Refund) bool { return r.HasExternalID() && *r.ExternalID == externalID })
}

func (m *MockRefundRepo) FindActiveByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.Refund, error) {
	return m.find(func(r *model.Refund) bool { return r.PaymentID == paymentID && r.Status.Active() })
}

func (m *MockRefundRepo) FindLatestByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.Refund, error) {
	return m.find(func(r *model.Refund) bool { return r.PaymentID == paymentID })
}

func (m *MockRefundRepo) FindLatestProcessingByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.Refund, error) {
	return m.find(func(r *model.Refund) bool {
		return r.PaymentID == paymentID && r.Status == model.RefundStatusProcessing
	})
}

func (m *MockRefundRepo) LatestByPayments(ctx context.Context, tx repository.Tx, paymentIDs []string) (map[string]*model.Refund, error) {
	out := map[string]*model.Refund{}
	for _, id := range paymentIDs {
		if r, err := m.FindLatestByPayment(ctx, tx, id); err == nil {
			out[id] = r
		}
	}
	return out, nil
}

func (m *MockRefundRepo) List(ctx context.Context, tx repository.Tx, f model.RefundFilter) ([]*model.Refund, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Refund
	for _, r := range m.data {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, cloneRefund(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m *MockRefundRepo) ListProcessingWithExternalID(ctx context.Context, tx repository.Tx, after *model.RefundCursor, limit int) ([]*model.Refund, error) {
	list, _, _ := m.List(ctx, tx, model.RefundFilter{Status: model.RefundStatusProcessing})
	list = lo.Filter(list, func(r *model.Refund, _ int) bool {
		return r.HasExternalID() && (after == nil || after.After(r))
	})
	sort.Slice(list, func(i, j int) bool { return model.CursorOf(list[j]).After(list[i]) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MockRefundRepo) Update(ctx context.Context, tx repository.Tx, r *model.Refund, from ...model.RefundStatus) (bool, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, r, from...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[r.ID]
	if !ok || (len(from) > 0 && !lo.Contains(from, cur.Status)) {
		return false, nil
	}
	next := cloneRefund(r)
	if next.ExternalID == nil {
		next.ExternalID = cur.ExternalID
	}
	m.data[r.ID] = next
	return true, nil
}

func (m *MockRefundRepo) Stats(ctx context.Context, tx repository.Tx) ([]model.RefundStatusStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	by := map[model.RefundStatus]*model.RefundStatusStat{}
	for _, r := range m.data {
		s, ok := by[r.Status]
		if !ok {
			s = &model.RefundStatusStat{Status: r.Status}
			by[r.Status] = s
		}
		s.Count++
		s.TotalAmount += r.Amount
	}
	out := make([]model.RefundStatusStat, 0, len(by))
	for _, s := range by {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

// =============================
// Purchases and catalog
// =============================

type MockPurchaseRepo struct {
	mu    sync.Mutex
	items []*model.Purchase
}

var _ repository.PurchaseRepository = (*MockPurchaseRepo)(nil)

func NewMockPurchaseRepo() *MockPurchaseRepo { return &MockPurchaseRepo{} }

func (m *MockPurchaseRepo) SaveAll(ctx context.Context, tx repository.Tx, items []*model.Purchase) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range items {
		dup := lo.ContainsBy(m.items, func(e *model.Purchase) bool {
			return e.PaymentID == it.PaymentID && e.ItemType == it.ItemType && e.ItemID == it.ItemID
		})
		if dup {
			continue
		}
		cp := *it
		m.items = append(m.items, &cp)
		n++
	}
	return n, nil
}

func (m *MockPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.items, func(p *model.Purchase, _ int) bool { return p.UserID == userID }), nil
}

func (m *MockPurchaseRepo) MarkRefundedByPayment(ctx context.Context, tx repository.Tx, paymentID string, refundAmount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.items {
		if p.PaymentID == paymentID {
			p.Status = model.PurchaseRefunded
			p.RefundAmount = refundAmount
			n++
		}
	}
	return n, nil
}

func (m *MockPurchaseRepo) ByPayment(paymentID string) []*model.Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.items, func(p *model.Purchase, _ int) bool { return p.PaymentID == paymentID })
}

type MockServiceRepo struct {
	mu   sync.Mutex
	data map[int64]*model.Service
}

var _ repository.ServiceRepository = (*MockServiceRepo)(nil)

func NewMockServiceRepo(services ...*model.Service) *MockServiceRepo {
	m := &MockServiceRepo{data: map[int64]*model.Service{}}
	for _, s := range services {
		m.data[s.ServiceID] = s
	}
	return m
}

func (m *MockServiceRepo) Save(ctx context.Context, tx repository.Tx, s *model.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.ServiceID] = s
	return nil
}

func (m *MockServiceRepo) FindByID(ctx context.Context, tx repository.Tx, serviceID int64) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[serviceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockServiceRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Service
	for _, s := range m.data {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

// =============================
// Shared state
// =============================

type MockReceipts struct {
	mu      sync.Mutex
	seen    map[string]bool
	SeenErr error
}

var _ repository.WebhookReceiptStore = (*MockReceipts)(nil)

func NewMockReceipts() *MockReceipts { return &MockReceipts{seen: map[string]bool{}} }

func (m *MockReceipts) Seen(ctx context.Context, eventID string) (bool, error) {
	if m.SeenErr != nil {
		return false, m.SeenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[eventID], nil
}

func (m *MockReceipts) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[eventID] = true
	return nil
}

type MockOTPStore struct {
	mu    sync.Mutex
	codes map[string]*repository.OTPCode
	TTLs  map[string]time.Duration
}

var _ repository.OTPStore = (*MockOTPStore)(nil)

func NewMockOTPStore() *MockOTPStore {
	return &MockOTPStore{codes: map[string]*repository.OTPCode{}, TTLs: map[string]time.Duration{}}
}

func (m *MockOTPStore) Set(ctx context.Context, contact string, code *repository.OTPCode, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *code
	m.codes[contact] = &cp
	m.TTLs[contact] = ttl
	return nil
}

func (m *MockOTPStore) Get(ctx context.Context, contact string) (*repository.OTPCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[contact]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockOTPStore) Expire(ctx context.Context, contact string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, contact)
	return nil
}

type MockRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMockRateLimiter() *MockRateLimiter { return &MockRateLimiter{counts: map[string]int{}} }

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key] <= limit, nil
}

type MockCodeSender struct {
	mu       sync.Mutex
	Sent     map[string]string
	SendFunc func(ctx context.Context, contact, code string) error
}

var _ adapter.CodeSender = (*MockCodeSender)(nil)

func NewMockCodeSender() *MockCodeSender { return &MockCodeSender{Sent: map[string]string{}} }

func (m *MockCodeSender) Send(ctx context.Context, contact, code string) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, contact, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent[contact] = code
	return nil
}

// MockVerifier returns Event for any payload, or Err when set.
type MockVerifier struct {
	Event *model.GatewayEvent
	Err   error
}

var _ adapter.WebhookVerifier = (*MockVerifier)(nil)

func (m *MockVerifier) ParseEvent(payload []byte, signature string) (*model.GatewayEvent, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Event, nil
}
