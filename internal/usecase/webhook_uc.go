package usecase

import (
	"context"
	"errors"
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

var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase reconciles gateway events against local payments and refunds.
type WebhookUseCase interface {
	// Handle verifies and applies one delivery. It returns domain.ErrInvalidSignature
	// for untrusted payloads and an error only when the event should be redelivered.
	// Events that match no local record are acknowledged.
	Handle(ctx context.Context, payload []byte, signature string) error
}

// Webhook outcomes (metric labels).
const (
	outcomeProcessed  = "processed"
	outcomeDuplicate  = "duplicate"
	outcomeNotFound   = "not_found"
	outcomeOutOfOrder = "out_of_order"
	outcomeIgnored    = "ignored"
	outcomeError      = "error"
)

type webhookUC struct {
	verifier   adapter.WebhookVerifier
	payments   repository.PaymentRepository
	refunds    repository.RefundRepository
	receipts   repository.WebhookReceiptStore
	tm         repository.TransactionManager
	w          *stateWriter
	lookups    []paymentLookup
	receiptTTL time.Duration
	log        *zerolog.Logger
}

func NewWebhookUseCase(
	verifier adapter.WebhookVerifier,
	payments repository.PaymentRepository,
	refunds repository.RefundRepository,
	purchases repository.PurchaseRepository,
	receipts repository.WebhookReceiptStore,
	tm repository.TransactionManager,
	receiptTTL time.Duration,
	logger *zerolog.Logger,
) *webhookUC {
	return &webhookUC{
		verifier:   verifier,
		payments:   payments,
		refunds:    refunds,
		receipts:   receipts,
		tm:         tm,
		w:          &stateWriter{payments: payments, purchases: purchases, log: logger},
		lookups:    intentLookups(payments),
		receiptTTL: receiptTTL,
		log:        logger,
	}
}

func (u *webhookUC) Handle(ctx context.Context, payload []byte, signature string) error {
	defer logging.TraceDuration(u.log, "WebhookUC.Handle")()

	e, err := u.verifier.ParseEvent(payload, signature)
	if err != nil {
		metrics.IncWebhookEvent("unknown", "invalid_signature")
		u.log.Warn().Err(err).Msg("webhook rejected")
		return err
	}
	ctx = logging.WithEventID(ctx, e.ID)
	log := logging.With(ctx, u.log).With().Str("event_type", e.Type).Logger()

	if u.receipts != nil {
		seen, err := u.receipts.Seen(ctx, e.ID)
		if err != nil {
			log.Warn().Err(err).Msg("webhook receipt lookup failed; processing anyway")
		} else if seen {
			metrics.IncWebhookEvent(e.Type, outcomeDuplicate)
			log.Info().Msg("webhook event already processed")
			return nil
		}
	}

	var outcome string
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		outcome, err = u.apply(ctx, tx, e, &log)
		return err
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		outcome = outcomeNotFound
	case err != nil:
		metrics.IncWebhookEvent(e.Type, outcomeError)
		log.Error().Err(err).Msg("webhook processing failed")
		return err
	}

	metrics.IncWebhookEvent(e.Type, outcome)
	if outcome == outcomeNotFound {
		log.Warn().Str("object_id", e.Object.ID).Msg("no local record for webhook event; acknowledged")
	}
	if u.receipts != nil {
		if err := u.receipts.MarkProcessed(ctx, e.ID, u.receiptTTL); err != nil {
			log.Warn().Err(err).Msg("webhook receipt not recorded")
		}
	}
	return nil
}

func (u *webhookUC) apply(ctx context.Context, tx repository.Tx, e *model.GatewayEvent, log *zerolog.Logger) (string, error) {
	if e.Undecodable {
		log.Warn().Msg("webhook object could not be decoded; acknowledged without changes")
		return outcomeIgnored, nil
	}
	switch e.Type {
	case model.EventCheckoutSessionCompleted:
		return u.checkoutCompleted(ctx, tx, e.Object, log)
	case model.EventPaymentIntentSucceeded:
		return u.intentSucceeded(ctx, tx, e.Object, log)
	case model.EventPaymentIntentFailed:
		return u.intentFailed(ctx, tx, e.Object, log)
	case model.EventChargeRefunded:
		return u.chargeRefunded(ctx, tx, e.Object, log)
	case model.EventChargeDisputeCreated:
		log.Warn().Str("dispute_id", e.Object.ID).Str("payment_intent", e.Object.PaymentIntent).
			Str("reason", e.Object.DisputeReason).Msg("charge dispute opened")
		return outcomeProcessed, nil
	default:
		log.Info().Msg("unhandled webhook event type")
		return outcomeIgnored, nil
	}
}

func (u *webhookUC) checkoutCompleted(ctx context.Context, tx repository.Tx, obj model.EventObject, log *zerolog.Logger) (string, error) {
	p, err := u.payments.FindByCheckoutSession(ctx, tx, obj.CheckoutSession)
	if err != nil {
		return "", err
	}
	plog := log.With().Str("payment_id", p.ID).Str("session_id", obj.CheckoutSession).Logger()

	if err := u.backfillIntent(ctx, tx, p, obj.PaymentIntent, &plog); err != nil {
		return "", err
	}
	meta := lo.OmitByValues(map[string]string{
		"checkoutSessionId": obj.CheckoutSession,
		"customerEmail":     obj.CustomerEmail,
		"paymentStatus":     obj.PaymentStatus,
	}, []string{""})
	if err := u.payments.MergeGatewayMetadata(ctx, tx, p.ID, meta); err != nil {
		return "", err
	}

	var to model.PaymentStatus
	switch obj.PaymentStatus {
	case model.SessionPaid:
		to = model.PaymentStatusSucceeded
	case model.SessionUnpaid:
		to = model.PaymentStatusFailed
	default:
		plog.Info().Str("payment_status", obj.PaymentStatus).Msg("checkout completed without a final payment state")
		return outcomeProcessed, nil
	}
	return u.transition(ctx, tx, p, to, model.PaymentPatch{}, &plog)
}

func (u *webhookUC) intentSucceeded(ctx context.Context, tx repository.Tx, obj model.EventObject, log *zerolog.Logger) (string, error) {
	p, strategy, err := findPayment(ctx, tx, u.lookups, obj)
	if err != nil {
		return "", err
	}
	metrics.IncPaymentLookup(strategy)
	plog := log.With().Str("payment_id", p.ID).Str("payment_intent", obj.PaymentIntent).Str("lookup", strategy).Logger()
	plog.Info().Msg("payment matched for intent event")

	if err := u.backfillIntent(ctx, tx, p, obj.PaymentIntent, &plog); err != nil {
		return "", err
	}
	patch := model.PaymentPatch{GatewayMetadata: map[string]string{"paymentIntentId": obj.PaymentIntent}}
	if obj.PaymentMethod != "" {
		patch.PaymentMethod = lo.ToPtr(obj.PaymentMethod)
	}
	return u.transition(ctx, tx, p, model.PaymentStatusSucceeded, patch, &plog)
}

func (u *webhookUC) intentFailed(ctx context.Context, tx repository.Tx, obj model.EventObject, log *zerolog.Logger) (string, error) {
	p, err := u.payments.FindByPaymentIntent(ctx, tx, obj.PaymentIntent)
	if err != nil {
		return "", err
	}
	metrics.IncPaymentLookup(lookupByIntent)
	plog := log.With().Str("payment_id", p.ID).Str("payment_intent", obj.PaymentIntent).Logger()

	meta := lo.OmitByValues(map[string]string{
		"failureCode":    obj.FailureCode,
		"failureMessage": obj.FailureMessage,
	}, []string{""})
	if err := u.payments.MergeGatewayMetadata(ctx, tx, p.ID, meta); err != nil {
		return "", err
	}
	return u.transition(ctx, tx, p, model.PaymentStatusFailed, model.PaymentPatch{}, &plog)
}

// chargeRefunded settles the refund and its payment in one transaction. Either
// side may be missing locally; the other is still applied.
func (u *webhookUC) chargeRefunded(ctx context.Context, tx repository.Tx, obj model.EventObject, log *zerolog.Logger) (string, error) {
	p, err := orNil(u.payments.FindByPaymentIntent(ctx, tx, obj.PaymentIntent))
	if err != nil {
		return "", err
	}
	if p != nil {
		metrics.IncPaymentLookup(lookupByIntent)
	}

	var r *model.Refund
	for _, id := range obj.RefundIDs {
		found, err := u.refunds.FindByExternalID(ctx, tx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		r = found
		break
	}
	if r == nil && p != nil {
		found, err := u.refunds.FindLatestProcessingByPayment(ctx, tx, p.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		r = found
	}
	if p == nil && r != nil {
		if p, err = orNil(u.payments.FindByID(ctx, tx, r.PaymentID)); err != nil {
			return "", err
		}
	}
	if p == nil && r == nil {
		return outcomeNotFound, nil
	}

	amount := obj.AmountRefunded
	if r != nil {
		rlog := log.With().Str("refund_id", r.ID).Str("refund_status", string(r.Status)).Logger()
		if r.Status == model.RefundStatusProcessing {
			r.MarkSucceeded(model.ConfirmedByGateway, time.Now().UTC())
			ok, err := u.refunds.Update(ctx, tx, r, model.RefundStatusProcessing)
			if err != nil {
				return "", err
			}
			if ok {
				metrics.IncRefundTransition(string(model.RefundStatusSucceeded), string(model.ConfirmedByGateway))
				rlog.Info().Msg("refund confirmed by gateway")
			}
		} else {
			rlog.Info().Msg("refund not processing; left unchanged")
		}
		amount = r.Amount
	} else {
		log.Warn().Str("payment_intent", obj.PaymentIntent).Msg("charge refunded without a local refund request")
	}

	if p == nil {
		log.Warn().Str("payment_intent", obj.PaymentIntent).Msg("refunded charge has no local payment")
		return outcomeProcessed, nil
	}
	if p.Status != model.PaymentStatusSucceeded && p.Status != model.PaymentStatusRefunded {
		log.Warn().Str("payment_id", p.ID).Str("status", string(p.Status)).Msg("refund for a payment that never succeeded; out of order")
		return outcomeOutOfOrder, nil
	}
	if err := u.w.refundPayment(ctx, tx, p, amount, sourceWebhook, nil); err != nil {
		return "", err
	}
	return outcomeProcessed, nil
}

// transition applies a webhook-driven status change. Moves the transition table
// does not allow are skipped as out of order, never returned as errors.
func (u *webhookUC) transition(ctx context.Context, tx repository.Tx, p *model.Payment, to model.PaymentStatus, patch model.PaymentPatch, log *zerolog.Logger) (string, error) {
	from := p.Status
	changed, err := u.w.setPaymentStatus(ctx, tx, p, to, sourceWebhook, patch)
	if errors.Is(err, domain.ErrInvalidTransition) {
		log.Warn().Str("from", string(from)).Str("to", string(to)).Msg("webhook transition out of order; skipped")
		return outcomeOutOfOrder, nil
	}
	if err != nil {
		return "", err
	}
	if !changed {
		log.Debug().Str("status", string(p.Status)).Msg("payment already in target status")
	}
	return outcomeProcessed, nil
}

// backfillIntent stores the intent id when the payment has none yet. An
// existing different id is kept and reported, as is an intent already held
// by another payment.
func (u *webhookUC) backfillIntent(ctx context.Context, tx repository.Tx, p *model.Payment, intentID string, log *zerolog.Logger) error {
	if intentID == "" || p.IntentID() == intentID {
		return nil
	}
	if p.HasPaymentIntent() {
		log.Warn().Str("stored_intent", p.IntentID()).Str("event_intent", intentID).Msg("payment intent mismatch; keeping stored id")
		return nil
	}
	ok, err := u.payments.SetPaymentIntentIfEmpty(ctx, tx, p.ID, intentID)
	if errors.Is(err, domain.ErrAlreadyExists) {
		holder := "unknown"
		if other, ferr := u.payments.FindByPaymentIntent(ctx, tx, intentID); ferr == nil {
			holder = other.ID
		}
		log.Warn().Str("payment_intent", intentID).Str("holder_payment_id", holder).
			Msg("payment intent already attached to another payment; leaving both unchanged")
		return nil
	}
	if err != nil {
		return err
	}
	if ok {
		p.PaymentIntentID = lo.ToPtr(intentID)
		log.Info().Str("payment_intent", intentID).Msg("payment intent backfilled")
	}
	return nil
}
