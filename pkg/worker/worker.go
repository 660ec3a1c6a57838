// Package worker drives the claim/execute/report loop. Any number of
// worker processes may run it against the same ledger file; the ledger's
// exclusive transactions keep them from colliding, and the loop never
// holds the ledger lock while a job executes.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gwbatch/extrapq/pkg/ledger"
)

// Executor runs one claimed job and reports its exit status; zero means
// success. A non-nil error means the job could not be run at all.
type Executor interface {
	Execute(ctx context.Context, identity string) (int, error)
}

// Worker claims pending jobs from a ledger and runs them through an
// Executor until no pending work remains.
type Worker struct {
	ledger   *ledger.Ledger
	executor Executor
	config   config
}

// New returns a Worker over l using executor.
func New(l *ledger.Ledger, executor Executor, opts ...Option) *Worker {
	cfg := config{
		workerID: uuid.New().String(),
		retry:    DefaultRetryConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &Worker{ledger: l, executor: executor, config: cfg}
}

// Run loops until the ledger reports no pending work, then returns nil.
// A job that runs and fails is recorded as Failed and the loop moves on;
// only ledger errors (after bounded lock-contention retries) and context
// cancellation end the loop early.
//
// The loop keeps no state of its own: a worker restarted by an outside
// supervisor picks up exactly where the ledger says things stand.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.config.logger.With("worker", w.config.workerID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var identity string
		var ok bool
		err := retryOnLockTimeout(ctx, w.config.retry, func() error {
			var claimErr error
			identity, ok, claimErr = w.ledger.ClaimNext(ctx)
			return claimErr
		})
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("no pending extrapolations; work exhausted")
			return nil
		}

		logger.Info("claimed extrapolation", "datafile", identity)
		status, execErr := w.executor.Execute(ctx, identity)

		if execErr != nil || status != 0 {
			if execErr != nil {
				logger.Error("extrapolation could not run", "datafile", identity, "error", execErr)
			} else {
				logger.Warn("extrapolation failed", "datafile", identity, "status", status)
			}
			if err := w.report(ctx, identity, w.ledger.Fail); err != nil {
				return err
			}
			continue
		}

		logger.Info("extrapolation finished", "datafile", identity)
		if err := w.report(ctx, identity, w.ledger.Complete); err != nil {
			return err
		}
	}
}

// report records an outcome with lock-contention retries. A missing row
// means a concurrent re-population replaced our claim; the outcome is
// stale, so it is logged and dropped rather than treated as fatal.
func (w *Worker) report(ctx context.Context, identity string, op func(context.Context, string) error) error {
	err := retryOnLockTimeout(ctx, w.config.retry, func() error {
		return op(ctx, identity)
	})
	if errors.Is(err, ledger.ErrNotFound) {
		w.config.logger.Warn("row disappeared before outcome was recorded", "datafile", identity)
		return nil
	}
	return err
}
