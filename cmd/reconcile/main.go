package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"nexus-billing/internal/config"
	payAdapters "nexus-billing/internal/infra/adapters/payment"
	pg "nexus-billing/internal/infra/db/postgres"
	"nexus-billing/internal/infra/logging"
	red "nexus-billing/internal/infra/redis"
	"nexus-billing/internal/infra/sched"
	"nexus-billing/internal/usecase"
)

// reconcile runs one refund sweep against the gateway and prints the summary.
func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "overall sweep deadline")
	noLock := flag.Bool("no-lock", false, "skip the redis sweep lock")
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL, int32(cfg.Reconcile.Workers)+1)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	gw, err := payAdapters.NewStripeGateway(cfg.Stripe.SecretKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("stripe gateway")
	}

	refunds := pg.NewRefundRepo(pool)
	refundUC := usecase.NewRefundUseCase(refunds, pg.NewPaymentRepo(pool), pg.NewPostgresPurchaseRepo(pool), gw, pg.NewTxManager(pool), logger)
	sweep := usecase.NewReconcileUseCase(refunds, refundUC, cfg.Reconcile.Workers, cfg.Reconcile.BatchSize, logger)

	var locker red.Locker
	if !*noLock {
		rdb, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		locker = red.NewLocker(rdb)
	}

	res, err := sched.NewRefundReconciler(sweep, locker, "", cfg.Reconcile.LockTTL, logger).RunOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("sweep failed")
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
	if res.Errors > 0 {
		os.Exit(2)
	}
}
