package extrapq_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwbatch/extrapq"
	"github.com/gwbatch/extrapq/pkg/discover"
	"github.com/gwbatch/extrapq/pkg/worker"
)

// stubRepo serves a fixed change-set from a fixed head.
type stubRepo struct {
	head    string
	changed []string
}

func (s *stubRepo) Sync(ctx context.Context) error { return nil }
func (s *stubRepo) ChangedSince(ctx context.Context, rev string) ([]string, error) {
	return s.changed, nil
}
func (s *stubRepo) Fetch(ctx context.Context, path string) error { return nil }
func (s *stubRepo) Head(ctx context.Context) (string, error)     { return s.head, nil }
func (s *stubRepo) UserName(ctx context.Context) (string, error) { return "stub", nil }
func (s *stubRepo) FirstRevisionBy(ctx context.Context, a string) (string, error) {
	return "", nil
}
func (s *stubRepo) FirstRevision(ctx context.Context) (string, error) { return "rev0", nil }

// stubExecutor fails identities listed in failing, succeeds otherwise.
type stubExecutor struct {
	failing map[string]bool
	ran     []string
}

func (s *stubExecutor) Execute(ctx context.Context, identity string) (int, error) {
	s.ran = append(s.ran, identity)
	if s.failing[identity] {
		return 1, nil
	}
	return 0, nil
}

// TestBatchLifecycle walks the whole flow: discovery populates the
// ledger, a worker drains it, failures stay retired, and a second
// population pass resets them.
func TestBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	l, err := extrapq.OpenLedger(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer l.Close()

	good := "runs/bbh1/rhOverM_FiniteRadii_CodeUnits.h5"
	bad := "runs/bbh2/rhOverM_FiniteRadii_CodeUnits.h5"
	repo := &stubRepo{head: "head1", changed: []string{good, bad, "runs/bbh1/metadata.txt"}}

	res, err := discover.Populate(ctx, l, repo, discover.Options{StartRev: "rev0", Logger: quiet})
	require.NoError(t, err)
	require.Equal(t, 2, res.Added, "only data files are scheduled")

	exec := &stubExecutor{failing: map[string]bool{bad: true}}
	require.NoError(t, worker.New(l, exec, worker.WithLogger(quiet)).Run(ctx))
	assert.ElementsMatch(t, []string{good, bad}, exec.ran)

	counts, err := l.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Pending, "worker drained the ledger")
	assert.Equal(t, int64(1), counts.Failed, "the failed run is retired, not retried")

	// A second worker finds nothing: failures need explicit re-promotion.
	exec2 := &stubExecutor{}
	require.NoError(t, worker.New(l, exec2, worker.WithLogger(quiet)).Run(ctx))
	assert.Empty(t, exec2.ran)

	// Re-discovering the failed file resets its history.
	repo.changed = []string{bad}
	_, err = discover.Populate(ctx, l, repo, discover.Options{StartRev: "head1", Logger: quiet})
	require.NoError(t, err)

	require.NoError(t, worker.New(l, exec2, worker.WithLogger(quiet)).Run(ctx))
	assert.Equal(t, []string{bad}, exec2.ran)

	counts, err = l.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Failed, "second attempt succeeded and deleted the row")
}

func TestErrorsAreReExported(t *testing.T) {
	assert.NotNil(t, extrapq.ErrStoreUnavailable)
	assert.NotNil(t, extrapq.ErrLockTimeout)
	assert.NotNil(t, extrapq.ErrNotFound)
}
