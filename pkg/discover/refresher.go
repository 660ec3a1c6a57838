package discover

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gwbatch/extrapq/pkg/annex"
	"github.com/gwbatch/extrapq/pkg/ledger"
)

// Refresher re-runs population on a cron schedule, advancing the start
// revision to the head observed by the previous pass so each pass only
// picks up what arrived since the last one.
type Refresher struct {
	ledger   *ledger.Ledger
	repo     annex.Repository
	opts     Options
	schedule cron.Schedule
	logger   *slog.Logger
}

// NewRefresher parses expr as a standard five-field cron expression.
func NewRefresher(l *ledger.Ledger, repo annex.Repository, opts Options, expr string) (*Refresher, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("discover: invalid cron expression %q: %w", expr, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{ledger: l, repo: repo, opts: opts, schedule: schedule, logger: logger}, nil
}

// Run populates once immediately, then again at each scheduled time until
// the context is cancelled. Population errors end the loop: a broken lock
// or repository should be surfaced, not retried blindly.
func (r *Refresher) Run(ctx context.Context) error {
	opts := r.opts
	for {
		res, err := Populate(ctx, r.ledger, r.repo, opts)
		if err != nil {
			return err
		}
		r.logger.Info("population pass finished", "added", res.Added, "head", res.Head)

		// Subsequent passes diff from the head this pass saw.
		opts.StartRev = res.Head
		opts.SinceMyLastCommit = false
		opts.SkipSync = false

		next := r.schedule.Next(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}
	}
}
