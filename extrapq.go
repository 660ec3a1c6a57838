// Package extrapq coordinates a batch of long-running waveform
// extrapolation jobs across independent worker processes, with a single
// shared SQLite file as the only point of coordination.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Open the shared ledger and schedule work from git history
//	l, _ := extrapq.OpenLedger("ExtrapolationsToRun.db")
//	repo := annex.NewGitAnnex("/data/waveforms", nil)
//	discover.Populate(ctx, l, repo, discover.Options{StartRev: rev})
//
//	// In any number of worker processes:
//	r := runner.New("/data/waveforms")
//	worker.New(l, r).Run(ctx)
package extrapq

import (
	"github.com/gwbatch/extrapq/pkg/annex"
	"github.com/gwbatch/extrapq/pkg/discover"
	"github.com/gwbatch/extrapq/pkg/ledger"
	"github.com/gwbatch/extrapq/pkg/runner"
	"github.com/gwbatch/extrapq/pkg/worker"
)

type (
	// Ledger is the durable table of job rows shared between processes.
	Ledger = ledger.Ledger

	// Status is the state of one job row.
	Status = ledger.Status

	// Counts summarizes the ledger by status.
	Counts = ledger.Counts

	// Repository is the version-control collaborator used by discovery.
	Repository = annex.Repository

	// Options controls one population pass.
	Options = discover.Options

	// Result reports what one population pass did.
	Result = discover.Result

	// Runner executes extrapolation jobs.
	Runner = runner.Runner

	// Worker drives the claim/execute/report loop.
	Worker = worker.Worker

	// Executor runs one claimed job and reports its exit status.
	Executor = worker.Executor
)

const (
	StatusFailed  = ledger.StatusFailed
	StatusPending = ledger.StatusPending
	StatusRunning = ledger.StatusRunning
)

var (
	ErrStoreUnavailable = ledger.ErrStoreUnavailable
	ErrLockTimeout      = ledger.ErrLockTimeout
	ErrNotFound         = ledger.ErrNotFound
)

// OpenLedger opens (or creates) the shared ledger file at path.
func OpenLedger(path string, opts ...ledger.Option) (*Ledger, error) {
	return ledger.Open(path, opts...)
}
