// Command extrapq schedules and runs batches of waveform extrapolations.
//
// Populate mode (the default) inspects git history for changed data
// files and writes one pending row per file into the shared ledger:
//
//	extrapq -db ExtrapolationsToRun.db -start-rev abc123
//
// Run mode claims and executes pending extrapolations until none remain,
// then exits 0. Any number of run-mode processes may share one ledger:
//
//	extrapq -db ExtrapolationsToRun.db -run
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gwbatch/extrapq/pkg/annex"
	"github.com/gwbatch/extrapq/pkg/discover"
	"github.com/gwbatch/extrapq/pkg/ledger"
	"github.com/gwbatch/extrapq/pkg/runner"
	"github.com/gwbatch/extrapq/pkg/worker"
)

// lockAdvice is printed when the ledger's exclusive lock cannot be
// acquired. Retrying does not help; the file has to move.
const lockAdvice = `ERROR: The ledger database could not be locked.

       If the ledger file lives on an NFS filesystem, note that NFS is
       often broken with regards to file locking. Locate the file on a
       non-NFS partition by giving a different path to the -db argument;
       everything else can stay where it is.`

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// validateFlags rejects contradictory mode combinations before any work
// happens: run mode consumes an existing ledger and must not be mixed
// with flags that would repopulate it.
func validateFlags(runMode, sinceMine bool, startRev, every string) error {
	if runMode && (sinceMine || startRev != "" || every != "") {
		return errors.New("-run cannot be combined with populate flags")
	}
	return nil
}

func fatal(err error) {
	if errors.Is(err, ledger.ErrLockTimeout) {
		printError("%s\n\n%v\n", lockAdvice, err)
	} else {
		printError("Error: %v\n", err)
	}
	os.Exit(1)
}

func main() {
	var (
		dbPath      = flag.String("db", "ExtrapolationsToRun.db", "path to the sqlite ledger tracking which extrapolations need to run")
		runMode     = flag.Bool("run", false, "claim and run pending extrapolations until none remain")
		startRev    = flag.String("start-rev", "", "git revision at which to start counting changes (default: current HEAD)")
		sinceMine   = flag.Bool("since-my-last-commit", false, "only schedule data newer than the user's last commit")
		repoDir     = flag.String("repo", ".", "root of the git-annex repository holding the waveform data")
		suffix      = flag.String("suffix", discover.DefaultSuffix, "schedule only changed files with this suffix")
		every       = flag.String("every", "", "cron expression for repeated re-population (e.g. \"0 * * * *\")")
		interpreter = flag.String("interpreter", "python", "interpreter for the generated extrapolation scripts")
		showStatus  = flag.Bool("status", false, "print ledger counts and exit")
		retryFailed = flag.Bool("retry-failed", false, "re-promote failed extrapolations to pending and exit")
	)
	flag.Parse()

	if err := validateFlags(*runMode, *sinceMine, *startRev, *every); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := ledger.Open(*dbPath)
	if err != nil {
		fatal(err)
	}
	defer l.Close()

	switch {
	case *showStatus:
		counts, err := l.Counts(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("pending: %d\nrunning: %d\nfailed:  %d\n", counts.Pending, counts.Running, counts.Failed)

	case *retryFailed:
		n, err := l.Reset(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("re-promoted %d failed extrapolation(s) to pending\n", n)

	case *runMode:
		r := runner.New(*repoDir, runner.WithInterpreter(*interpreter), runner.WithLogger(logger))
		w := worker.New(l, r, worker.WithLogger(logger))
		if err := w.Run(ctx); err != nil {
			fatal(err)
		}

	default:
		repo := annex.NewGitAnnex(*repoDir, logger)
		opts := discover.Options{
			StartRev:          *startRev,
			SinceMyLastCommit: *sinceMine,
			Suffix:            *suffix,
			Logger:            logger,
		}
		if *every != "" {
			refresher, err := discover.NewRefresher(l, repo, opts, *every)
			if err != nil {
				fatal(err)
			}
			if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				fatal(err)
			}
			return
		}
		res, err := discover.Populate(ctx, l, repo, opts)
		if err != nil {
			fatal(err)
		}
		if res.Added == 0 {
			fmt.Println("No changed files; nothing to extrapolate.")
			return
		}
		fmt.Printf("Scheduled %d extrapolation(s) since %s.\n", res.Added, res.StartRev)
	}
}
