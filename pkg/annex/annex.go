// Package annex talks to the git/git-annex repository that holds the
// waveform data. The ledger core only sees the Repository interface;
// GitAnnex is the exec-backed implementation used in production.
package annex

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Repository is the version-control collaborator consumed by discovery.
type Repository interface {
	// Sync brings the local checkout up to date with its remotes.
	Sync(ctx context.Context) error

	// ChangedSince lists paths changed between rev and the current head.
	ChangedSince(ctx context.Context, rev string) ([]string, error)

	// Fetch makes the content of an annexed path locally available.
	Fetch(ctx context.Context, path string) error

	// Head returns the hash of the current head revision.
	Head(ctx context.Context) (string, error)

	// UserName returns the configured committer name.
	UserName(ctx context.Context) (string, error)

	// FirstRevisionBy returns the author's earliest recorded revision,
	// or "" when the author has none.
	FirstRevisionBy(ctx context.Context, author string) (string, error)

	// FirstRevision returns the very first revision in history.
	FirstRevision(ctx context.Context) (string, error)
}

// GitAnnex implements Repository by shelling out to git and git-annex in
// a fixed working directory. The process working directory is never
// changed; every command is scoped via exec.Cmd.Dir.
type GitAnnex struct {
	dir    string
	logger *slog.Logger
}

// NewGitAnnex returns a Repository rooted at dir.
func NewGitAnnex(dir string, logger *slog.Logger) *GitAnnex {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitAnnex{dir: dir, logger: logger}
}

func (g *GitAnnex) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = g.dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("annex: %s %s: %s", name, strings.Join(args, " "), msg)
	}
	return string(out), nil
}

// Sync pulls with rebase and merges the annex branch, matching the
// original batch setup flow.
func (g *GitAnnex) Sync(ctx context.Context) error {
	g.logger.Debug("syncing repository", "dir", g.dir)
	if _, err := g.run(ctx, "git", "pull", "--rebase"); err != nil {
		return err
	}
	_, err := g.run(ctx, "git", "annex", "merge")
	return err
}

func (g *GitAnnex) ChangedSince(ctx context.Context, rev string) ([]string, error) {
	out, err := g.run(ctx, "git", "diff", "--name-only", rev+"..HEAD")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (g *GitAnnex) Fetch(ctx context.Context, path string) error {
	g.logger.Info("fetching annexed content", "path", path)
	_, err := g.run(ctx, "git", "annex", "get", path)
	return err
}

func (g *GitAnnex) Head(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *GitAnnex) UserName(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "git", "config", "user.name")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// FirstRevisionBy returns the earliest commit authored by author: the
// point from which "everything since my contributions began" is counted.
func (g *GitAnnex) FirstRevisionBy(ctx context.Context, author string) (string, error) {
	out, err := g.run(ctx, "git", "log", "--format=%H", "--author="+author)
	if err != nil {
		return "", err
	}
	lines := splitLines(out)
	if len(lines) == 0 {
		return "", nil
	}
	return lines[len(lines)-1], nil
}

func (g *GitAnnex) FirstRevision(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "git", "log", "--format=%H")
	if err != nil {
		return "", err
	}
	lines := splitLines(out)
	if len(lines) == 0 {
		return "", fmt.Errorf("annex: repository has no commits")
	}
	return lines[len(lines)-1], nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
