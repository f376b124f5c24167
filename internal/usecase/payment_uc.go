package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/adapter"
	"nexus-billing/internal/domain/ports/repository"
	"nexus-billing/internal/infra/logging"
	"nexus-billing/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentUseCase covers checkout, the user's payment history and the admin payment screens.
type PaymentUseCase interface {
	CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
	ListForUser(ctx context.Context, userID string) ([]*UserPayment, error)
	// GetForUser matches externalID against the payment intent or checkout session id.
	GetForUser(ctx context.Context, userID, externalID string) (*model.Payment, error)
	ListPurchases(ctx context.Context, userID string) ([]*model.Purchase, error)
	ListServices(ctx context.Context) ([]*model.Service, error)

	AdminList(ctx context.Context, f model.PaymentFilter) (*Page[*model.Payment], error)
	AdminGet(ctx context.Context, id string) (*model.Payment, error)
	ByStatus(ctx context.Context, status string, page, limit int) (*Page[*model.Payment], error)
	// OverrideStatus sets failed or refunded by hand. Success is never settable here.
	OverrideStatus(ctx context.Context, adminID, id, target, notes string) (*model.Payment, error)
	Analytics(ctx context.Context) (*model.PaymentAnalytics, error)
}

type CheckoutInput struct {
	UserID        string
	CustomerEmail string
	CustomerName  string
	ServiceID     int64
	SuccessURL    string
	CancelURL     string
}

type CheckoutResult struct {
	PaymentID string `json:"paymentId"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// UserPayment is a payment annotated with its newest refund.
type UserPayment struct {
	*model.Payment
	RefundID         string             `json:"refundId,omitempty"`
	RefundStatus     model.RefundStatus `json:"refundStatus,omitempty"`
	HasRefundRequest bool               `json:"hasRefundRequest"`
}

// Page is one page of an admin listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

func newPage[T any](items []T, total, page, limit int) *Page[T] {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Total: total, Page: page, Limit: limit, Pages: (total + limit - 1) / limit}
}

type paymentUC struct {
	payments  repository.PaymentRepository
	refunds   repository.RefundRepository
	purchases repository.PurchaseRepository
	services  repository.ServiceRepository
	gateway   adapter.PaymentGateway
	tm        repository.TransactionManager
	w         *stateWriter
	currency  string
	log       *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	refunds repository.RefundRepository,
	purchases repository.PurchaseRepository,
	services repository.ServiceRepository,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	currency string,
	logger *zerolog.Logger,
) *paymentUC {
	if currency == "" {
		currency = "usd"
	}
	return &paymentUC{
		payments:  payments,
		refunds:   refunds,
		purchases: purchases,
		services:  services,
		gateway:   gateway,
		tm:        tm,
		w:         &stateWriter{payments: payments, purchases: purchases, log: logger},
		currency:  strings.ToLower(currency),
		log:       logger,
	}
}

func (u *paymentUC) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.CreateCheckout")()

	if in.UserID == "" || in.ServiceID <= 0 || in.SuccessURL == "" || in.CancelURL == "" {
		return nil, domain.ErrInvalidArgument
	}
	svc, err := u.services.FindByID(ctx, repository.NoTX, in.ServiceID)
	if err != nil {
		return nil, err
	}
	amount, err := svc.AmountMinor()
	if err != nil {
		metrics.IncCheckout("invalid_price")
		u.log.Warn().Int64("service_id", svc.ServiceID).Str("price", svc.Price).Msg("service price cannot be parsed")
		return nil, err
	}

	meta := map[string]string{
		"userId":    in.UserID,
		"serviceId": strconv.FormatInt(svc.ServiceID, 10),
	}
	sess, err := u.gateway.CreateCheckoutSession(ctx, adapter.CheckoutRequest{
		Amount:          amount,
		Currency:        u.currency,
		ItemName:        svc.Title,
		ItemDescription: strings.Join(lo.Compact([]string{svc.Category, svc.Consultant}), " - "),
		CustomerEmail:   in.CustomerEmail,
		SuccessURL:      in.SuccessURL,
		CancelURL:       in.CancelURL,
		Metadata:        meta,
	})
	if err != nil {
		metrics.IncCheckout("gateway_error")
		u.log.Error().Err(err).Int64("service_id", svc.ServiceID).Msg("create checkout session failed")
		return nil, err
	}

	p, err := model.NewPayment(in.UserID, svc.Snapshot(), sess.ID, amount, u.currency)
	if err != nil {
		return nil, err
	}
	p.CustomerEmail = in.CustomerEmail
	p.CustomerName = in.CustomerName
	p.Metadata = meta
	if sess.PaymentIntentID != "" {
		p.PaymentIntentID = lo.ToPtr(sess.PaymentIntentID)
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		metrics.IncCheckout("store_error")
		u.log.Error().Err(err).Str("session_id", sess.ID).Msg("checkout session created but payment not stored")
		return nil, err
	}

	metrics.IncCheckout("created")
	u.log.Info().Str("payment_id", p.ID).Str("session_id", sess.ID).Int64("amount", amount).Msg("checkout created")
	return &CheckoutResult{PaymentID: p.ID, SessionID: sess.ID, URL: sess.URL}, nil
}

func (u *paymentUC) ListForUser(ctx context.Context, userID string) ([]*UserPayment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.ListForUser")()

	list, _, err := u.payments.List(ctx, repository.NoTX, model.PaymentFilter{
		UserID:   userID,
		Statuses: []model.PaymentStatus{model.PaymentStatusSucceeded, model.PaymentStatusProcessing, model.PaymentStatusRefunded},
		Page:     1,
		Limit:    100,
	})
	if err != nil {
		return nil, err
	}
	latest, err := u.refunds.LatestByPayments(ctx, repository.NoTX, lo.Map(list, func(p *model.Payment, _ int) string { return p.ID }))
	if err != nil {
		return nil, err
	}

	out := make([]*UserPayment, 0, len(list))
	for _, p := range list {
		up := &UserPayment{Payment: p}
		if r, ok := latest[p.ID]; ok {
			up.RefundID = r.ID
			up.RefundStatus = r.Status
			up.HasRefundRequest = true
		}
		out = append(out, up)
	}
	return out, nil
}

func (u *paymentUC) GetForUser(ctx context.Context, userID, externalID string) (*model.Payment, error) {
	if userID == "" || externalID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.payments.FindForUserByExternalID(ctx, repository.NoTX, userID, externalID)
}

func (u *paymentUC) ListPurchases(ctx context.Context, userID string) ([]*model.Purchase, error) {
	return u.purchases.ListByUser(ctx, repository.NoTX, userID)
}

func (u *paymentUC) ListServices(ctx context.Context) ([]*model.Service, error) {
	return u.services.ListActive(ctx, repository.NoTX)
}

func (u *paymentUC) AdminList(ctx context.Context, f model.PaymentFilter) (*Page[*model.Payment], error) {
	defer logging.TraceDuration(u.log, "PaymentUC.AdminList")()
	list, total, err := u.payments.List(ctx, repository.NoTX, f)
	if err != nil {
		return nil, err
	}
	return newPage(list, total, f.Page, f.Limit), nil
}

func (u *paymentUC) AdminGet(ctx context.Context, id string) (*model.Payment, error) {
	return u.payments.FindByID(ctx, repository.NoTX, id)
}

func (u *paymentUC) ByStatus(ctx context.Context, status string, page, limit int) (*Page[*model.Payment], error) {
	s := model.PaymentStatus(strings.ToLower(status))
	if !s.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	return u.AdminList(ctx, model.PaymentFilter{Statuses: []model.PaymentStatus{s}, Page: page, Limit: limit})
}

func (u *paymentUC) OverrideStatus(ctx context.Context, adminID, id, target, notes string) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.OverrideStatus")()

	to := model.PaymentStatus(strings.ToLower(target))
	if !lo.Contains(model.ManualPaymentTargets, to) {
		metrics.IncAdminAction("payment_override", "invalid_status")
		return nil, domain.ErrInvalidStatus
	}

	var out *model.Payment
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		meta := map[string]string{"updatedBy": adminID}
		if notes != "" {
			meta["adminNotes"] = notes
		}
		patch := model.PaymentPatch{Metadata: meta}
		if to == model.PaymentStatusRefunded {
			now := time.Now().UTC()
			patch.RefundedAt = &now
		}
		if _, err := u.w.setPaymentStatus(ctx, tx, p, to, sourceAdmin, patch); err != nil {
			return err
		}
		if to == model.PaymentStatusRefunded {
			if _, err := u.purchases.MarkRefundedByPayment(ctx, tx, p.ID, p.Amount); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		metrics.IncAdminAction("payment_override", "error")
		u.log.Warn().Err(err).Str("payment_id", id).Str("target", string(to)).Str("admin_id", adminID).Msg("payment override rejected")
		return nil, err
	}

	metrics.IncAdminAction("payment_override", "ok")
	u.log.Info().Str("payment_id", id).Str("status", string(to)).Str("admin_id", adminID).Msg("payment status overridden")
	return out, nil
}

func (u *paymentUC) Analytics(ctx context.Context) (*model.PaymentAnalytics, error) {
	return u.payments.Analytics(ctx, repository.NoTX)
}
