package descriptors

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
)

var commandContext = exec.CommandContext

// GitOption configures a GitDiffer
type GitOption func(*GitDiffer)

// WithGitBinary overrides the git executable
func WithGitBinary(binary string) GitOption {
	return func(g *GitDiffer) {
		if binary != "" {
			g.binary = binary
		}
	}
}

// WithRepoDir runs git against the repository at dir. Returned paths are
// joined with dir so they resolve from the current working directory.
func WithRepoDir(dir string) GitOption {
	return func(g *GitDiffer) {
		g.repoDir = dir
	}
}

// GitDiffer lists changed paths with `git diff --name-only`
type GitDiffer struct {
	binary  string
	repoDir string
}

// NewGitDiffer constructs a differ using git from PATH
func NewGitDiffer(opts ...GitOption) *GitDiffer {
	g := &GitDiffer{binary: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ChangedPaths implements Differ
func (g *GitDiffer) ChangedPaths(ctx context.Context, from, to string) ([]string, error) {
	var args []string
	if g.repoDir != "" {
		args = append(args, "-C", g.repoDir)
	}
	args = append(args, "diff", "--name-only", from, to)

	cmd := commandContext(ctx, g.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, ErrSource.New("git diff %s %s: %v: %s", from, to, err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if g.repoDir != "" {
			line = filepath.Join(g.repoDir, line)
		}
		paths = append(paths, line)
	}
	return paths, nil
}
