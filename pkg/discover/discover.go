// Package discover populates the ledger from version-control history: it
// determines which data files changed since a starting revision, fetches
// their annexed content, and writes one pending row per file.
package discover

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/gwbatch/extrapq/pkg/annex"
	"github.com/gwbatch/extrapq/pkg/ledger"
)

// DefaultSuffix selects the finite-radius waveform files that need
// extrapolation runs.
const DefaultSuffix = "_FiniteRadii_CodeUnits.h5"

// horizonsFile is fetched alongside every data file; the extrapolation
// reads it from the same directory.
const horizonsFile = "Horizons.h5"

// Options controls one population pass.
type Options struct {
	// StartRev is the revision changes are counted from. Empty means the
	// current head (an intentionally empty change-set, useful to create
	// the ledger without scheduling work).
	StartRev string

	// SinceMyLastCommit derives StartRev from the configured user's
	// earliest commit, falling back to the first revision in history.
	// Takes precedence over StartRev.
	SinceMyLastCommit bool

	// Suffix filters the change-set. Defaults to DefaultSuffix.
	Suffix string

	// SkipSync disables the pull/merge step, for checkouts that are
	// already up to date. Scheduled refreshes always sync so each pass
	// sees newly arrived data.
	SkipSync bool

	Logger *slog.Logger
}

// Result reports what one population pass did.
type Result struct {
	// StartRev is the resolved starting revision.
	StartRev string
	// Head is the head revision the change-set was computed against.
	Head string
	// Added is the number of identities written to the ledger. Zero is
	// the normal "nothing to do" outcome, not an error.
	Added int
}

// Populate computes the change-set between the resolved start revision
// and head, filters it to waveform data files, deduplicates, fetches each
// file's content, and upserts one pending row per file. Any prior Failed
// or Running row for a re-discovered file is replaced: changed data
// invalidates old run history.
func Populate(ctx context.Context, l *ledger.Ledger, repo annex.Repository, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	suffix := opts.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}

	if !opts.SkipSync {
		if err := repo.Sync(ctx); err != nil {
			return Result{}, fmt.Errorf("discover: sync: %w", err)
		}
	}

	startRev, err := resolveStartRev(ctx, repo, opts)
	if err != nil {
		return Result{}, err
	}
	head, err := repo.Head(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("discover: %w", err)
	}

	changed, err := repo.ChangedSince(ctx, startRev)
	if err != nil {
		return Result{}, fmt.Errorf("discover: %w", err)
	}

	identities := dedup(filterSuffix(changed, suffix))
	res := Result{StartRev: startRev, Head: head}
	if len(identities) == 0 {
		logger.Info("no changed data files; nothing to extrapolate", "since", startRev)
		return res, nil
	}

	for _, identity := range identities {
		if err := repo.Fetch(ctx, identity); err != nil {
			return res, fmt.Errorf("discover: %w", err)
		}
		if err := repo.Fetch(ctx, path.Join(path.Dir(identity), horizonsFile)); err != nil {
			return res, fmt.Errorf("discover: %w", err)
		}
		if err := l.Upsert(ctx, identity); err != nil {
			return res, err
		}
		res.Added++
		logger.Info("scheduled extrapolation", "datafile", identity)
	}
	return res, nil
}

// resolveStartRev picks the revision to diff from: the user's earliest
// commit when requested (falling back to the first revision in history),
// an explicit revision, or the current head.
func resolveStartRev(ctx context.Context, repo annex.Repository, opts Options) (string, error) {
	if opts.SinceMyLastCommit {
		name, err := repo.UserName(ctx)
		if err != nil {
			return "", fmt.Errorf("discover: %w", err)
		}
		rev, err := repo.FirstRevisionBy(ctx, name)
		if err != nil {
			return "", fmt.Errorf("discover: %w", err)
		}
		if rev != "" {
			return rev, nil
		}
		rev, err = repo.FirstRevision(ctx)
		if err != nil {
			return "", fmt.Errorf("discover: %w", err)
		}
		return rev, nil
	}
	if opts.StartRev != "" {
		return opts.StartRev, nil
	}
	rev, err := repo.Head(ctx)
	if err != nil {
		return "", fmt.Errorf("discover: %w", err)
	}
	return rev, nil
}

func filterSuffix(paths []string, suffix string) []string {
	var out []string
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			out = append(out, p)
		}
	}
	return out
}

// dedup removes duplicates while preserving first-seen order, which in
// turn fixes the ledger's claim order.
func dedup(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	var out []string
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
