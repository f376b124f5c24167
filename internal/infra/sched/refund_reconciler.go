package sched

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/infra/redis"
	"nexus-billing/internal/usecase"
)

const sweepLockKey = "lock:refund-sweep"

// ErrSweepRunning is returned by RunOnce when another instance holds the sweep lock.
var ErrSweepRunning = errors.New("refund sweep already running")

type Sweeper interface {
	Sweep(ctx context.Context) (*usecase.SweepResult, error)
}

// RefundReconciler runs the refund sweep on a cron schedule. The redis lock
// keeps concurrent instances from sweeping the same refunds.
type RefundReconciler struct {
	sweeper  Sweeper
	locker   redis.Locker
	lockTTL  time.Duration
	schedule string
	cron     *cron.Cron
	log      *zerolog.Logger
}

// NewRefundReconciler builds the job. A nil locker runs without cross-instance locking.
func NewRefundReconciler(s Sweeper, locker redis.Locker, schedule string, lockTTL time.Duration, logger *zerolog.Logger) *RefundReconciler {
	if schedule == "" {
		schedule = "@every 10m"
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("job", "refund-sweep").Logger()
	return &RefundReconciler{
		sweeper:  s,
		locker:   locker,
		lockTTL:  lockTTL,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&l)))),
		log:      &l,
	}
}

func (r *RefundReconciler) Name() string { return "refund-sweep" }

// Start registers the job and starts the cron loop. Runs use ctx as their parent.
func (r *RefundReconciler) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepRunning) {
			r.log.Error().Err(err).Msg("scheduled refund sweep failed")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "schedule %q", r.schedule)
	}
	r.cron.Start()
	r.log.Info().Str("schedule", r.schedule).Msg("refund reconciler started")
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (r *RefundReconciler) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
		r.log.Warn().Msg("refund reconciler stop timed out")
	}
}

// RunOnce performs a single locked sweep. A panic inside the sweep is
// returned as an error.
func (r *RefundReconciler) RunOnce(ctx context.Context) (res *usecase.SweepResult, err error) {
	if r.locker != nil {
		token, lerr := r.locker.TryLock(ctx, sweepLockKey, r.lockTTL)
		if errors.Is(lerr, domain.ErrAlreadyExists) {
			r.log.Info().Msg("refund sweep skipped, lock held elsewhere")
			return nil, ErrSweepRunning
		}
		if lerr != nil {
			return nil, errors.Wrap(lerr, "acquire sweep lock")
		}
		defer func() {
			// release with a fresh context so a cancelled run still unlocks
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if uerr := r.locker.Unlock(uctx, sweepLockKey, token); uerr != nil {
				r.log.Warn().Err(uerr).Msg("release sweep lock")
			}
		}()
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Msg("refund sweep panicked")
			res, err = nil, errors.Errorf("refund sweep panic: %v", p)
		}
	}()
	return r.sweeper.Sweep(ctx)
}
