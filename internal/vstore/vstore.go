// Package vstore is a content-addressed snapshot store for a workspace
// directory, realized by shelling out to the system "git" binary against
// a private bare repository. Callers address commits by digest alone; the
// only ref is the store's own internal HEAD branch, which each commit
// advances. Commits carry a fixed synthetic identity so the
// store never leaks or depends on user git configuration.
package vstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Store is a bare git repository rooted alongside the engine's data
// directory, tracking a single workspace's files.
type Store struct {
	gitDir     string // <workspace>/.cc-workbench/snapshots.git
	workTree   string // the workspace root
	ownDataDir string // <workspace>/.cc-workbench, excluded from staging
}

// StatusEntry describes one path's change between a commit and the
// current working tree.
type StatusEntry struct {
	Path string
	Code byte // 'A' added-since, 'M' modified, 'D' deleted-since
}

// Open initializes (if necessary) a bare repository at
// <workspace>/.cc-workbench/snapshots.git and returns a Store bound to it.
func Open(ctx context.Context, workspace string) (*Store, error) {
	dataDir := filepath.Join(workspace, ".cc-workbench")
	gitDir := filepath.Join(dataDir, "snapshots.git")
	s := &Store{gitDir: gitDir, workTree: workspace, ownDataDir: dataDir}

	if _, err := os.Stat(gitDir); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("vstore: stat %s: %w", gitDir, err)
		}
		if err := os.MkdirAll(gitDir, 0o755); err != nil {
			return nil, fmt.Errorf("vstore: mkdir %s: %w", gitDir, err)
		}
		// Not via s.git: git rejects --work-tree on `init --bare`.
		initCmd := exec.CommandContext(ctx, "git", "init", "--bare", "-q", gitDir)
		if out, err := initCmd.CombinedOutput(); err != nil {
			return nil, fmt.Errorf("vstore: init bare repo: %w: %s", err, strings.TrimSpace(string(out)))
		}
	}
	return s, nil
}

// synthetic committer identity: fixed, not user-derived.
const (
	committerName  = "cc-workbench"
	committerEmail = "snapshots@cc-workbench.local"
)

func (s *Store) git(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"--git-dir=" + s.gitDir, "--work-tree=" + s.workTree}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+committerName,
		"GIT_AUTHOR_EMAIL="+committerEmail,
		"GIT_COMMITTER_NAME="+committerName,
		"GIT_COMMITTER_EMAIL="+committerEmail,
		"GIT_AUTHOR_DATE=2000-01-01T00:00:00Z",
		"GIT_COMMITTER_DATE=2000-01-01T00:00:00Z",
	)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(errBuf.String()))
	}
	return out.Bytes(), nil
}

// StageAll recursively stages every workspace path, excluding the engine's
// own data directory.
func (s *Store) StageAll(ctx context.Context) error {
	rel, err := filepath.Rel(s.workTree, s.ownDataDir)
	if err != nil {
		rel = ".cc-workbench"
	}
	if _, err := s.git(ctx, "add", "--all", "--", ".", ":!"+rel); err != nil {
		return fmt.Errorf("vstore: stage: %w", err)
	}
	return nil
}

// Commit commits the currently-staged tree (even if unchanged — empty
// commits are allowed so every prompt gets a commit) and returns its digest.
func (s *Store) Commit(ctx context.Context, message string) (string, error) {
	if _, err := s.git(ctx, "commit", "--allow-empty", "-q", "-m", message); err != nil {
		return "", fmt.Errorf("vstore: commit: %w", err)
	}
	out, err := s.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("vstore: rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Diff returns the unified diff between commit digest and the current
// working tree.
func (s *Store) Diff(ctx context.Context, digest string) (string, error) {
	out, err := s.git(ctx, "diff", digest, "--", ".")
	if err != nil {
		return "", fmt.Errorf("vstore: diff: %w", err)
	}
	return string(out), nil
}

// Status returns the name-status list of digest vs the current working
// tree: A = added since digest, M = modified, D = deleted since digest.
func (s *Store) Status(ctx context.Context, digest string) ([]StatusEntry, error) {
	out, err := s.git(ctx, "diff", "--name-status", digest, "--", ".")
	if err != nil {
		return nil, fmt.Errorf("vstore: status: %w", err)
	}
	var entries []StatusEntry
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		code := fields[0][0]
		entries = append(entries, StatusEntry{Path: fields[1], Code: code})
	}
	return entries, nil
}

// Checkout replaces the working tree's tracked files with digest's tree.
// Note this alone does not remove files that did not exist at digest but
// exist now — callers must consult Status for 'A' entries and delete
// them.
func (s *Store) Checkout(ctx context.Context, digest string) error {
	if _, err := s.git(ctx, "checkout", digest, "--", "."); err != nil {
		return fmt.Errorf("vstore: checkout: %w", err)
	}
	return nil
}
