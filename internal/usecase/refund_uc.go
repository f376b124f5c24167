package usecase

import (
	"context"
	"errors"
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

var _ RefundUseCase = (*refundUC)(nil)

// RefundUseCase drives a refund from the user's request to its final status.
type RefundUseCase interface {
	// Request opens a pending refund. amount 0 means the full payment amount.
	Request(ctx context.Context, userID, paymentID, reason string, amount int64) (*model.Refund, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Refund, error)

	AdminList(ctx context.Context, f model.RefundFilter) (*Page[*model.Refund], error)
	AdminGet(ctx context.Context, id string) (*model.Refund, error)
	Stats(ctx context.Context) (*model.RefundStats, error)
	// Decide applies an admin decision: approve (gateway refund), reject, or a
	// forced final status for a refund whose confirmation never arrived.
	Decide(ctx context.Context, adminID, id, target, notes string) (*model.Refund, error)
	// CheckStatus polls the gateway for a processing refund and applies the result.
	CheckStatus(ctx context.Context, id string) (*RefundCheck, error)
}

// Poll outcomes, shared with the sweep.
const (
	pollSucceeded = "succeeded"
	pollFailed    = "failed"
	pollUnchanged = "unchanged"
)

type RefundCheck struct {
	Refund        *model.Refund             `json:"refund"`
	GatewayStatus model.GatewayRefundStatus `json:"gatewayStatus"`
	Outcome       string                    `json:"outcome"`
}

type refundUC struct {
	refunds  repository.RefundRepository
	payments repository.PaymentRepository
	gateway  adapter.PaymentGateway
	tm       repository.TransactionManager
	w        *stateWriter
	log      *zerolog.Logger
}

func NewRefundUseCase(
	refunds repository.RefundRepository,
	payments repository.PaymentRepository,
	purchases repository.PurchaseRepository,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *refundUC {
	return &refundUC{
		refunds:  refunds,
		payments: payments,
		gateway:  gateway,
		tm:       tm,
		w:        &stateWriter{payments: payments, purchases: purchases, log: logger},
		log:      logger,
	}
}

func (u *refundUC) Request(ctx context.Context, userID, paymentID, reason string, amount int64) (*model.Refund, error) {
	defer logging.TraceDuration(u.log, "RefundUC.Request")()

	if userID == "" || paymentID == "" || strings.TrimSpace(reason) == "" {
		return nil, domain.ErrInvalidArgument
	}
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	if !p.RefundEligible() {
		return nil, domain.ErrInvalidStatus
	}

	active, err := u.refunds.FindActiveByPayment(ctx, repository.NoTX, p.ID)
	switch {
	case err == nil && active != nil:
		return nil, domain.ErrActiveRefundExists
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	r, err := model.NewRefund(p, userID, reason, amount)
	if err != nil {
		return nil, err
	}
	if err := u.refunds.Save(ctx, repository.NoTX, r); err != nil {
		return nil, err
	}
	metrics.IncRefundTransition(string(model.RefundStatusPending), "")
	u.log.Info().Str("refund_id", r.ID).Str("payment_id", p.ID).Int64("amount", r.Amount).Msg("refund requested")
	return r, nil
}

func (u *refundUC) ListForUser(ctx context.Context, userID string) ([]*model.Refund, error) {
	list, _, err := u.refunds.List(ctx, repository.NoTX, model.RefundFilter{UserID: userID, Page: 1, Limit: 100})
	return list, err
}

func (u *refundUC) AdminList(ctx context.Context, f model.RefundFilter) (*Page[*model.Refund], error) {
	defer logging.TraceDuration(u.log, "RefundUC.AdminList")()
	list, total, err := u.refunds.List(ctx, repository.NoTX, f)
	if err != nil {
		return nil, err
	}
	return newPage(list, total, f.Page, f.Limit), nil
}

func (u *refundUC) AdminGet(ctx context.Context, id string) (*model.Refund, error) {
	return u.refunds.FindByID(ctx, repository.NoTX, id)
}

func (u *refundUC) Stats(ctx context.Context) (*model.RefundStats, error) {
	rows, err := u.refunds.Stats(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	out := &model.RefundStats{StatusBreakdown: rows}
	for _, s := range rows {
		out.TotalRequests += s.Count
		if s.Status == model.RefundStatusSucceeded {
			out.SuccessfulRefunds = s.Count
		}
	}
	if out.TotalRequests > 0 {
		out.SuccessRate = float64(out.SuccessfulRefunds) / float64(out.TotalRequests) * 100
	}
	return out, nil
}

func (u *refundUC) Decide(ctx context.Context, adminID, id, target, notes string) (*model.Refund, error) {
	defer logging.TraceDuration(u.log, "RefundUC.Decide")()

	to := model.RefundStatus(strings.ToLower(target))
	if !lo.Contains(model.AdminRefundTargets, to) {
		metrics.IncAdminAction("refund_decision", "invalid_status")
		return nil, domain.ErrInvalidStatus
	}
	r, err := u.refunds.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if !r.Status.AdminCanSet(to) {
		metrics.IncAdminAction("refund_decision", "invalid_transition")
		return nil, domain.ErrInvalidTransition
	}

	var out *model.Refund
	switch {
	case to == model.RefundStatusApproved || to == model.RefundStatusProcessing:
		out, err = u.approve(ctx, adminID, r, notes)
	case to == model.RefundStatusRejected:
		out, err = u.reject(ctx, adminID, r.ID, notes)
	default:
		out, err = u.resolve(ctx, adminID, r.ID, to, notes)
	}
	if err != nil {
		metrics.IncAdminAction("refund_decision", "error")
		u.log.Warn().Err(err).Str("refund_id", id).Str("target", string(to)).Str("admin_id", adminID).Msg("refund decision failed")
		return nil, err
	}
	metrics.IncAdminAction("refund_decision", "ok")
	return out, nil
}

// approve asks the gateway to refund and records the gateway refund id. The
// gateway call happens before the transaction opens; a failure leaves the
// refund pending so the admin can retry with the same idempotency key.
func (u *refundUC) approve(ctx context.Context, adminID string, r *model.Refund, notes string) (*model.Refund, error) {
	p, err := u.payments.FindByID(ctx, repository.NoTX, r.PaymentID)
	if err != nil {
		return nil, err
	}
	log := u.log.With().Str("refund_id", r.ID).Str("payment_id", p.ID).Logger()

	intent, note := u.resolveIntent(ctx, p, &log)
	if intent == "" {
		return u.settleLocally(ctx, adminID, r.ID, notes, note, &log)
	}

	gr, err := u.gateway.CreateRefund(ctx, adapter.RefundRequest{
		PaymentIntentID: intent,
		Amount:          r.Amount,
		Reason:          r.Reason,
		Metadata:        map[string]string{"refundId": r.ID, "paymentId": p.ID, "userId": r.UserID},
		IdempotencyKey:  "refund-" + r.ID,
	})
	if err != nil {
		log.Error().Err(err).Msg("gateway refund failed; refund left pending")
		return nil, err
	}

	var out *model.Refund
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.refunds.FindByID(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.RefundStatusPending {
			return domain.ErrInvalidTransition
		}
		now := time.Now().UTC()
		cur.Decide(model.RefundStatusApproved, adminID, notes, now)
		cur.Status = model.RefundStatusProcessing
		cur.ExternalID = lo.ToPtr(gr.ID)
		ok, err := u.refunds.Update(ctx, tx, cur, model.RefundStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		out = cur
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("gateway_refund_id", gr.ID).Msg("gateway refund created but not recorded")
		return nil, err
	}
	metrics.IncRefundTransition(string(model.RefundStatusProcessing), "")
	log.Info().Str("gateway_refund_id", gr.ID).Str("gateway_status", string(gr.Status)).Msg("refund sent to gateway")

	// Some gateways settle card refunds synchronously.
	if gr.Status != model.GatewayRefundPending {
		if _, settled, err := u.applyGatewayStatus(ctx, out.ID, gr.Status, sourcePoll); err != nil {
			log.Warn().Err(err).Msg("immediate refund settlement failed; the sweep will retry")
		} else {
			out = settled
		}
	}
	return out, nil
}

// resolveIntent returns the payment intent to refund, recovering it from the
// checkout session when the payment never stored one. An empty intent comes
// with the note explaining why the refund has to be settled locally.
func (u *refundUC) resolveIntent(ctx context.Context, p *model.Payment, log *zerolog.Logger) (string, string) {
	if p.HasPaymentIntent() {
		return p.IntentID(), ""
	}
	if p.CheckoutSessionID == "" {
		return "", model.NoteNoGatewayLink
	}
	s, err := u.gateway.RetrieveCheckoutSession(ctx, p.CheckoutSessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", p.CheckoutSessionID).Msg("checkout session lookup failed")
		return "", model.NoteSessionLookup
	}
	if s.PaymentIntentID == "" {
		return "", model.NoteNoPaymentIntent
	}
	if ok, err := u.payments.SetPaymentIntentIfEmpty(ctx, repository.NoTX, p.ID, s.PaymentIntentID); err != nil {
		log.Warn().Err(err).Msg("payment intent backfill failed")
	} else if ok {
		p.PaymentIntentID = lo.ToPtr(s.PaymentIntentID)
		log.Info().Str("payment_intent", s.PaymentIntentID).Msg("payment intent recovered from checkout session")
	}
	return s.PaymentIntentID, ""
}

// settleLocally marks the refund succeeded without any gateway confirmation.
// The refund carries ConfirmedByLocal and the note so it can be audited.
func (u *refundUC) settleLocally(ctx context.Context, adminID, id, notes, note string, log *zerolog.Logger) (*model.Refund, error) {
	var out *model.Refund
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.refunds.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.RefundStatusPending {
			return domain.ErrInvalidTransition
		}
		now := time.Now().UTC()
		cur.Decide(model.RefundStatusApproved, adminID, notes, now)
		cur.MarkSucceeded(model.ConfirmedByLocal, now)
		cur.StatusReason = note
		ok, err := u.refunds.Update(ctx, tx, cur, model.RefundStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		p, err := u.payments.FindByID(ctx, tx, cur.PaymentID)
		if err != nil {
			return err
		}
		if err := u.w.refundPayment(ctx, tx, p, cur.Amount, sourceLocalRefund, map[string]string{"refundNote": note}); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRefundTransition(string(model.RefundStatusSucceeded), string(model.ConfirmedByLocal))
	log.Warn().Str("note", note).Msg("refund settled without gateway confirmation")
	return out, nil
}

func (u *refundUC) reject(ctx context.Context, adminID, id, notes string) (*model.Refund, error) {
	var out *model.Refund
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.refunds.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.RefundStatusPending {
			return domain.ErrInvalidTransition
		}
		now := time.Now().UTC()
		cur.Decide(model.RefundStatusRejected, adminID, notes, now)
		cur.Status = model.RefundStatusRejected
		cur.ProcessedAt = &now
		ok, err := u.refunds.Update(ctx, tx, cur, model.RefundStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRefundTransition(string(model.RefundStatusRejected), "")
	u.log.Info().Str("refund_id", id).Str("admin_id", adminID).Msg("refund rejected")
	return out, nil
}

// resolve forces succeeded or failed, the unstuck path for refunds whose
// gateway confirmation never arrived.
func (u *refundUC) resolve(ctx context.Context, adminID, id string, to model.RefundStatus, notes string) (*model.Refund, error) {
	var out *model.Refund
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.refunds.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cur.Status.AdminCanSet(to) {
			return domain.ErrInvalidTransition
		}
		from := cur.Status
		now := time.Now().UTC()
		cur.Decide(to, adminID, notes, now)
		if to == model.RefundStatusSucceeded {
			cur.MarkSucceeded(model.ConfirmedByAdmin, now)
		} else {
			cur.MarkFailed(now)
		}
		ok, err := u.refunds.Update(ctx, tx, cur, from)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		if to == model.RefundStatusSucceeded {
			p, err := u.payments.FindByID(ctx, tx, cur.PaymentID)
			if err != nil {
				return err
			}
			if err := u.w.refundPayment(ctx, tx, p, cur.Amount, sourceAdmin, nil); err != nil {
				return err
			}
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRefundTransition(string(to), string(out.ConfirmedBy))
	u.log.Info().Str("refund_id", id).Str("status", string(to)).Str("admin_id", adminID).Msg("refund resolved by admin")
	return out, nil
}

func (u *refundUC) CheckStatus(ctx context.Context, id string) (*RefundCheck, error) {
	defer logging.TraceDuration(u.log, "RefundUC.CheckStatus")()

	r, err := u.refunds.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if !r.HasExternalID() {
		return nil, domain.ErrNoExternalRefund
	}
	gr, err := u.gateway.RetrieveRefund(ctx, *r.ExternalID)
	if err != nil {
		return nil, err
	}
	outcome, updated, err := u.applyGatewayStatus(ctx, r.ID, gr.Status, sourcePoll)
	if err != nil {
		return nil, err
	}
	return &RefundCheck{Refund: updated, GatewayStatus: gr.Status, Outcome: outcome}, nil
}

// applyGatewayStatus moves a processing refund to the status the gateway
// reports. Refunds in any other status are returned unchanged, so re-polling
// a settled refund is a no-op.
func (u *refundUC) applyGatewayStatus(ctx context.Context, id string, gs model.GatewayRefundStatus, source string) (string, *model.Refund, error) {
	outcome := pollUnchanged
	var out *model.Refund
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.refunds.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		orig := *cur
		out = &orig
		if cur.Status != model.RefundStatusProcessing {
			return nil
		}

		now := time.Now().UTC()
		switch gs {
		case model.GatewayRefundSucceeded:
			cur.MarkSucceeded(model.ConfirmedByGateway, now)
		case model.GatewayRefundFailed, model.GatewayRefundCanceled:
			cur.MarkFailed(now)
			cur.StatusReason = "gateway reported " + string(gs)
		default:
			return nil
		}
		ok, err := u.refunds.Update(ctx, tx, cur, model.RefundStatusProcessing)
		if err != nil || !ok {
			return err
		}
		out = cur
		if cur.Status == model.RefundStatusSucceeded {
			p, err := u.payments.FindByID(ctx, tx, cur.PaymentID)
			if err != nil {
				return err
			}
			if err := u.w.refundPayment(ctx, tx, p, cur.Amount, source, nil); err != nil {
				return err
			}
			outcome = pollSucceeded
		} else {
			outcome = pollFailed
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	if outcome != pollUnchanged {
		metrics.IncRefundTransition(string(out.Status), string(out.ConfirmedBy))
		u.log.Info().Str("refund_id", id).Str("gateway_status", string(gs)).Str("status", string(out.Status)).
			Str("source", source).Msg("refund status reconciled")
	}
	return outcome, out, nil
}
