//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

func newTestPayment(t *testing.T, userID, session string) *model.Payment {
	t.Helper()
	p, err := model.NewPayment(userID, model.ServiceSnapshot{ServiceID: 1, Title: "Consultation", Price: "$100"}, session, 10000, "usd")
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	p.Metadata = map[string]string{"userId": userID, "serviceId": "1"}
	return p
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPaymentRepo(testPool)

	t.Run("should save and find a payment by every key", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment(t, "u1", "cs_1")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Save: %v", err)
		}

		byID, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil || byID.CheckoutSessionID != "cs_1" {
			t.Fatalf("FindByID: %+v %v", byID, err)
		}
		if byID.Service.Title != "Consultation" || byID.Metadata["userId"] != "u1" {
			t.Errorf("json columns not round-tripped: %+v", byID)
		}
		if _, err := repo.FindByCheckoutSession(ctx, nil, "cs_1"); err != nil {
			t.Errorf("FindByCheckoutSession: %v", err)
		}
		if _, err := repo.FindByPaymentIntent(ctx, nil, "pi_missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		open, err := repo.FindLatestOpen(ctx, nil, "u1", 1)
		if err != nil || open.ID != p.ID {
			t.Errorf("FindLatestOpen: %+v %v", open, err)
		}
	})

	t.Run("duplicate checkout session is rejected", func(t *testing.T) {
		cleanup(t)
		if err := repo.Save(ctx, nil, newTestPayment(t, "u1", "cs_dup")); err != nil {
			t.Fatal(err)
		}
		err := repo.Save(ctx, nil, newTestPayment(t, "u2", "cs_dup"))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("payment intent is set only once", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment(t, "u1", "cs_pi")
		_ = repo.Save(ctx, nil, p)

		ok, err := repo.SetPaymentIntentIfEmpty(ctx, nil, p.ID, "pi_1")
		if err != nil || !ok {
			t.Fatalf("first set: ok=%v err=%v", ok, err)
		}
		ok, err = repo.SetPaymentIntentIfEmpty(ctx, nil, p.ID, "pi_2")
		if err != nil || ok {
			t.Fatalf("second set must be a no-op: ok=%v err=%v", ok, err)
		}
		got, _ := repo.FindByPaymentIntent(ctx, nil, "pi_1")
		if got == nil || got.ID != p.ID {
			t.Fatal("intent pi_1 should still be stored")
		}
		byUser, err := repo.FindForUserByExternalID(ctx, nil, "u1", "pi_1")
		if err != nil || byUser.ID != p.ID {
			t.Errorf("FindForUserByExternalID by intent: %v", err)
		}
		if _, err := repo.FindForUserByExternalID(ctx, nil, "u2", "pi_1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("other users must not see the payment, got %v", err)
		}
	})

	t.Run("intent held by another payment leaves the transaction usable", func(t *testing.T) {
		cleanup(t)
		holder := newTestPayment(t, "u1", "cs_hold")
		other := newTestPayment(t, "u1", "cs_other")
		_ = repo.Save(ctx, nil, holder)
		_ = repo.Save(ctx, nil, other)
		if _, err := repo.SetPaymentIntentIfEmpty(ctx, nil, holder.ID, "pi_shared"); err != nil {
			t.Fatal(err)
		}

		tm := NewTxManager(testPool)
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			ok, err := repo.SetPaymentIntentIfEmpty(ctx, tx, other.ID, "pi_shared")
			if !errors.Is(err, domain.ErrAlreadyExists) || ok {
				t.Errorf("expected ErrAlreadyExists, got ok=%v err=%v", ok, err)
			}
			_, err = repo.UpdateStatus(ctx, tx, other.ID, []model.PaymentStatus{model.PaymentStatusPending}, model.PaymentStatusSucceeded, model.PaymentPatch{})
			return err
		})
		if err != nil {
			t.Fatalf("WithTx: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, other.ID)
		if got.Status != model.PaymentStatusSucceeded || got.HasPaymentIntent() {
			t.Errorf("expected succeeded without intent, got %s %q", got.Status, got.IntentID())
		}
	})

	t.Run("conditional status update", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment(t, "u1", "cs_st")
		_ = repo.Save(ctx, nil, p)

		method := "card"
		ok, err := repo.UpdateStatus(ctx, nil, p.ID, model.SourcesFor(model.PaymentStatusSucceeded), model.PaymentStatusSucceeded,
			model.PaymentPatch{PaymentMethod: &method, GatewayMetadata: map[string]string{"paymentStatus": "paid"}})
		if err != nil || !ok {
			t.Fatalf("pending -> succeeded: ok=%v err=%v", ok, err)
		}
		ok, _ = repo.UpdateStatus(ctx, nil, p.ID, model.SourcesFor(model.PaymentStatusFailed), model.PaymentStatusFailed, model.PaymentPatch{})
		if ok {
			t.Fatal("succeeded -> failed must not apply")
		}
		now := time.Now().UTC()
		ok, _ = repo.UpdateStatus(ctx, nil, p.ID, []model.PaymentStatus{model.PaymentStatusSucceeded}, model.PaymentStatusRefunded,
			model.PaymentPatch{RefundedAt: &now, Metadata: map[string]string{"adminNotes": "manual"}})
		if !ok {
			t.Fatal("succeeded -> refunded should apply")
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.Status != model.PaymentStatusRefunded || got.RefundedAt == nil {
			t.Errorf("unexpected payment: %+v", got)
		}
		if got.GatewayMetadata["paymentStatus"] != "paid" || got.Metadata["adminNotes"] != "manual" || got.Metadata["userId"] != "u1" {
			t.Errorf("metadata should be merged, got %+v / %+v", got.Metadata, got.GatewayMetadata)
		}
	})

	t.Run("list and analytics", func(t *testing.T) {
		cleanup(t)
		for i, s := range []string{"cs_a", "cs_b", "cs_c"} {
			p := newTestPayment(t, "u1", s)
			p.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
			_ = repo.Save(ctx, nil, p)
			if i > 0 {
				_, _ = repo.UpdateStatus(ctx, nil, p.ID, nil, model.PaymentStatusSucceeded, model.PaymentPatch{})
			}
		}
		list, total, err := repo.List(ctx, nil, model.PaymentFilter{UserID: "u1", Statuses: []model.PaymentStatus{model.PaymentStatusSucceeded}, Limit: 1})
		if err != nil || total != 2 || len(list) != 1 || list[0].CheckoutSessionID != "cs_c" {
			t.Fatalf("List: total=%d len=%d err=%v", total, len(list), err)
		}
		a, err := repo.Analytics(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if a.TotalPayments != 3 || a.SuccessfulPayments != 2 || a.PendingPayments != 1 || a.TotalRevenue != 20000 {
			t.Errorf("unexpected analytics: %+v", a)
		}
	})

	t.Run("FindByID locks inside a transaction", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment(t, "u1", "cs_tx")
		_ = repo.Save(ctx, nil, p)
		tm := NewTxManager(testPool)
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			got, err := repo.FindByID(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			_, err = repo.UpdateStatus(ctx, tx, got.ID, []model.PaymentStatus{model.PaymentStatusPending}, model.PaymentStatusCanceled, model.PaymentPatch{})
			return err
		})
		if err != nil {
			t.Fatalf("WithTx: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.Status != model.PaymentStatusCanceled {
			t.Errorf("expected canceled, got %s", got.Status)
		}
	})
}
