package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"nexus-billing/internal/config"
	"nexus-billing/internal/domain/ports/adapter"
	"nexus-billing/internal/infra/adapters/notify"
	payAdapters "nexus-billing/internal/infra/adapters/payment"
	"nexus-billing/internal/infra/api"
	pg "nexus-billing/internal/infra/db/postgres"
	"nexus-billing/internal/infra/logging"
	"nexus-billing/internal/infra/metrics"
	red "nexus-billing/internal/infra/redis"
	"nexus-billing/internal/infra/sched"
	"nexus-billing/internal/usecase"
)

// set with -ldflags at build time
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("billing service stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	// ---- Redis ----
	rdb, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer rdb.Close()

	// ---- Repositories ----
	payments := pg.NewPaymentRepo(pool)
	refunds := pg.NewRefundRepo(pool)
	purchases := pg.NewPostgresPurchaseRepo(pool)
	services := pg.NewServiceRepoCacheDecorator(pg.NewServiceRepo(pool), rdb, cfg.Redis.TTL)
	tm := pg.NewTxManager(pool)

	// ---- Gateway ----
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	verifier := payAdapters.NewStripeWebhookVerifier(cfg.Stripe.WebhookSecret, logger)

	// ---- Use cases ----
	paymentUC := usecase.NewPaymentUseCase(payments, refunds, purchases, services, gateway, tm, cfg.Stripe.Currency, logger)
	refundUC := usecase.NewRefundUseCase(refunds, payments, purchases, gateway, tm, logger)
	webhookUC := usecase.NewWebhookUseCase(verifier, payments, refunds, purchases, red.NewWebhookReceipts(rdb), tm, cfg.Webhook.ReceiptTTL, logger)
	otpUC := usecase.NewOTPUseCase(red.NewOTPStore(rdb), red.NewRateLimiter(rdb), notify.NewLogSender(logger, cfg.Runtime.Dev), usecase.OTPPolicy{
		TTL:         cfg.OTP.TTL,
		MaxRequests: cfg.OTP.MaxRequests,
		Window:      cfg.OTP.Window,
		Dev:         cfg.Runtime.Dev,
	}, logger)
	reconcileUC := usecase.NewReconcileUseCase(refunds, refundUC, cfg.Reconcile.Workers, cfg.Reconcile.BatchSize, logger)

	// ---- Refund sweep ----
	reconciler := sched.NewRefundReconciler(reconcileUC, red.NewLocker(rdb), cfg.Reconcile.Schedule, cfg.Reconcile.LockTTL, logger)
	if cfg.Reconcile.Enabled {
		if err := reconciler.Start(ctx); err != nil {
			return err
		}
	}

	go reportPoolStats(ctx, pool)

	// ---- HTTP ----
	srv := api.NewServer(paymentUC, refundUC, webhookUC, otpUC, reconciler, api.NewAuthenticator(cfg.Auth), api.Options{
		RequestTimeout:  cfg.HTTP.RequestTimeout,
		PublicRPS:       cfg.HTTP.PublicRPS,
		PublicBurst:     cfg.HTTP.PublicBurst,
		WebhookMaxBytes: cfg.Webhook.MaxBodyBytes,
		Dev:             cfg.Runtime.Dev,
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return rdb.Ping(ctx)
		},
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("version", version).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if cfg.Reconcile.Enabled {
		reconciler.Stop(shutdownCtx)
	}
	logger.Info().Msg("bye")
	return nil
}

// newGateway uses Stripe when a key is configured. Dev mode without a key
// falls back to the in-memory gateway.
func newGateway(cfg *config.Config, logger *zerolog.Logger) (adapter.PaymentGateway, error) {
	if cfg.Stripe.SecretKey == "" && cfg.Runtime.Dev {
		logger.Warn().Msg("no stripe key, using in-memory gateway")
		return payAdapters.NewMemoryGateway(), nil
	}
	gw, err := payAdapters.NewStripeGateway(cfg.Stripe.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("stripe gateway: %w", err)
	}
	return gw, nil
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := pool.Stat()
			metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		}
	}
}
