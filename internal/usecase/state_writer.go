package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
	"nexus-billing/internal/infra/metrics"
)

// Transition sources, used as metric labels and in logs.
const (
	sourceWebhook     = "webhook"
	sourceAdmin       = "admin"
	sourcePoll        = "poll"
	sourceLocalRefund = "local_refund"
)

// stateWriter applies payment status changes together with their side effects
// (purchases, revenue). Callers pass the tx they hold so everything commits together.
type stateWriter struct {
	payments  repository.PaymentRepository
	purchases repository.PurchaseRepository
	log       *zerolog.Logger
}

// setPaymentStatus compare-and-sets p from its current status to `to`.
// Re-applying the current status is a no-op. Moves not allowed by the
// transition table return domain.ErrInvalidTransition.
func (w *stateWriter) setPaymentStatus(ctx context.Context, tx repository.Tx, p *model.Payment, to model.PaymentStatus, source string, patch model.PaymentPatch) (bool, error) {
	if p.Status == to {
		return false, nil
	}
	if !p.Status.CanTransition(to) {
		return false, domain.ErrInvalidTransition
	}

	from := p.Status
	changed, err := w.payments.UpdateStatus(ctx, tx, p.ID, []model.PaymentStatus{from}, to, patch)
	if err != nil {
		return false, err
	}
	if !changed {
		w.log.Warn().Str("payment_id", p.ID).Str("from", string(from)).Str("to", string(to)).
			Msg("payment status changed concurrently; skipping")
		return false, nil
	}

	p.Status = to
	if patch.PaymentMethod != nil {
		p.PaymentMethod = *patch.PaymentMethod
	}
	if patch.RefundedAt != nil {
		p.RefundedAt = patch.RefundedAt
	}
	metrics.IncPaymentTransition(string(from), string(to), source)
	w.log.Info().Str("payment_id", p.ID).Str("from", string(from)).Str("to", string(to)).
		Str("source", source).Msg("payment status updated")

	if to == model.PaymentStatusSucceeded {
		n, err := w.purchases.SaveAll(ctx, tx, model.PurchasesForPayment(p))
		if err != nil {
			return true, err
		}
		if n > 0 {
			metrics.AddPaymentRevenue(p.Currency, p.Amount)
		}
	}
	return true, nil
}

// refundPayment cascades a succeeded refund onto its payment and purchases.
// Only a succeeded payment becomes refunded; other statuses are logged and left alone.
func (w *stateWriter) refundPayment(ctx context.Context, tx repository.Tx, p *model.Payment, amount int64, source string, meta map[string]string) error {
	switch p.Status {
	case model.PaymentStatusRefunded:
		// purchases may still lag behind a refund recorded elsewhere
	case model.PaymentStatusSucceeded:
		now := time.Now().UTC()
		changed, err := w.setPaymentStatus(ctx, tx, p, model.PaymentStatusRefunded, source, model.PaymentPatch{RefundedAt: &now, Metadata: meta})
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	default:
		w.log.Warn().Str("payment_id", p.ID).Str("status", string(p.Status)).Str("source", source).
			Msg("payment is not succeeded; refund cascade skipped")
		return nil
	}

	if _, err := w.purchases.MarkRefundedByPayment(ctx, tx, p.ID, amount); err != nil {
		return err
	}
	return nil
}
