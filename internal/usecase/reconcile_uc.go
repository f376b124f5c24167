package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
	"nexus-billing/internal/infra/metrics"
	"nexus-billing/internal/infra/worker"
)

var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase polls the gateway for every refund stuck in processing.
type ReconcileUseCase interface {
	Sweep(ctx context.Context) (*SweepResult, error)
}

type SweepResult struct {
	Checked   int `json:"checked"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
}

type reconcileUC struct {
	refunds   repository.RefundRepository
	checker   RefundUseCase
	workers   int
	batchSize int
	log       *zerolog.Logger
}

func NewReconcileUseCase(refunds repository.RefundRepository, checker RefundUseCase, workers, batchSize int, logger *zerolog.Logger) *reconcileUC {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &reconcileUC{refunds: refunds, checker: checker, workers: workers, batchSize: batchSize, log: logger}
}

// Sweep checks each processing refund that has a gateway id, reading them in
// keyset pages of batchSize until none are left. A failed lookup is counted
// and logged; it never aborts the sweep.
func (u *reconcileUC) Sweep(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	defer func() { metrics.ObserveSweepDuration(time.Since(start).Seconds()) }()

	var (
		mu  sync.Mutex
		res = &SweepResult{}
	)
	count := func(outcome string) {
		mu.Lock()
		defer mu.Unlock()
		res.Checked++
		switch outcome {
		case pollSucceeded:
			res.Succeeded++
		case pollFailed:
			res.Failed++
		case pollUnchanged:
			res.Unchanged++
		default:
			res.Errors++
		}
	}

	pool := worker.NewPool(u.workers, u.log)
	pool.Start(ctx)
	var after *model.RefundCursor
pages:
	for {
		page, err := u.refunds.ListProcessingWithExternalID(ctx, repository.NoTX, after, u.batchSize)
		if err != nil {
			pool.Close()
			return nil, err
		}
		for _, r := range page {
			id := r.ID
			err := pool.SubmitWait(ctx, func(ctx context.Context) error {
				check, err := u.checker.CheckStatus(ctx, id)
				if err != nil {
					u.log.Warn().Err(err).Str("refund_id", id).Msg("refund status check failed")
					count("error")
					return nil
				}
				count(check.Outcome)
				return nil
			})
			if err != nil {
				u.log.Warn().Err(err).Msg("sweep interrupted")
				break pages
			}
		}
		if len(page) < u.batchSize {
			break
		}
		after = model.CursorOf(page[len(page)-1])
	}
	pool.Close()

	metrics.AddSweepOutcome(pollSucceeded, res.Succeeded)
	metrics.AddSweepOutcome(pollFailed, res.Failed)
	metrics.AddSweepOutcome(pollUnchanged, res.Unchanged)
	metrics.AddSweepOutcome("error", res.Errors)
	u.log.Info().Int("checked", res.Checked).Int("succeeded", res.Succeeded).Int("failed", res.Failed).
		Int("unchanged", res.Unchanged).Int("errors", res.Errors).Dur("took", time.Since(start)).Msg("refund sweep finished")
	return res, nil
}
