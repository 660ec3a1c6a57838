package annex

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Nil(t, splitLines("\n\n"))
	assert.Equal(t, []string{"a", "b"}, splitLines("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, splitLines("  a  \n\nb"))
}

// newTestRepo builds a throwaway git repository with two commits. Tests
// that need it are skipped when git is not installed.
func newTestRepo(t *testing.T) (*GitAnnex, string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	g := NewGitAnnex(dir, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	ctx := context.Background()

	git := func(args ...string) {
		t.Helper()
		_, err := g.run(ctx, "git", args...)
		require.NoError(t, err, "git %v", args)
	}

	git("init", "-q")
	git("config", "user.name", "Test Author")
	git("config", "user.email", "test@example.com")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.txt"), []byte("1\n"), 0o644))
	git("add", "one.txt")
	git("commit", "-q", "-m", "first")

	first, err := g.Head(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.txt"), []byte("2\n"), 0o644))
	git("add", "two.txt")
	git("commit", "-q", "-m", "second")

	return g, first
}

func TestGitAnnex_HeadAndChangedSince(t *testing.T) {
	g, first := newTestRepo(t)
	ctx := context.Background()

	head, err := g.Head(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, head)

	changed, err := g.ChangedSince(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []string{"two.txt"}, changed)

	changed, err = g.ChangedSince(ctx, head)
	require.NoError(t, err)
	assert.Empty(t, changed, "no changes since head")
}

func TestGitAnnex_RevisionLookups(t *testing.T) {
	g, first := newTestRepo(t)
	ctx := context.Background()

	name, err := g.UserName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Test Author", name)

	rev, err := g.FirstRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, rev)

	rev, err = g.FirstRevisionBy(ctx, "Test Author")
	require.NoError(t, err)
	assert.Equal(t, first, rev, "earliest commit by the author")

	rev, err = g.FirstRevisionBy(ctx, "Nobody Ever")
	require.NoError(t, err)
	assert.Empty(t, rev, "unknown author yields no revision")
}

func TestGitAnnex_CommandFailureNamesCommand(t *testing.T) {
	g, _ := newTestRepo(t)

	_, err := g.ChangedSince(context.Background(), "not-a-rev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git diff")
}
