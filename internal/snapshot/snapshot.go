// Package snapshot turns "prompt submitted" events into version-store
// commits, processed by a single serial worker goroutine so that commits
// are totally ordered and no two stage/commit pairs race on the git
// index.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Siiichenggg/cc-workbench/internal/model"
	"github.com/Siiichenggg/cc-workbench/internal/vstore"
)

// Job requests a snapshot for one prompt.
type Job struct {
	PromptID  string
	PromptIdx int
}

// Result reports the outcome of a Job. Commit is empty when the snapshot
// failed; callers must tolerate a permanently-missing commit.
type Result struct {
	PromptID string
	Commit   model.Commit
}

// Engine owns the single worker goroutine and the version store.
type Engine struct {
	store   *vstore.Store
	jobs    chan Job
	results chan Result
	log     *slog.Logger
}

// New starts the worker goroutine, which runs until ctx is canceled.
func New(ctx context.Context, store *vstore.Store, log *slog.Logger, queueDepth int) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	e := &Engine{
		store:   store,
		jobs:    make(chan Job, queueDepth),
		results: make(chan Result, queueDepth),
		log:     log,
	}
	go e.run(ctx)
	return e
}

// Enqueue submits a job. It never blocks the caller beyond the channel's
// buffer; callers (the engine loop) must never call this from inside a
// blocking render or I/O path.
func (e *Engine) Enqueue(j Job) {
	e.jobs <- j
}

// Results returns the channel the engine loop drains for completed jobs.
func (e *Engine) Results() <-chan Result { return e.results }

func (e *Engine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.jobs:
			e.process(ctx, job)
		}
	}
}

func (e *Engine) process(ctx context.Context, job Job) {
	commit, err := e.snapshotOnce(ctx, job.PromptIdx)
	if err != nil {
		e.log.Warn("snapshot failed, prompt stays pending", "prompt_id", job.PromptID, "error", err)
		e.results <- Result{PromptID: job.PromptID}
		return
	}
	e.results <- Result{PromptID: job.PromptID, Commit: model.Commit(commit)}
}

func (e *Engine) snapshotOnce(ctx context.Context, idx int) (string, error) {
	if err := e.store.StageAll(ctx); err != nil {
		return "", fmt.Errorf("stage: %w", err)
	}
	digest, err := e.store.Commit(ctx, fmt.Sprintf("snapshot %d", idx))
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return digest, nil
}

// Diff returns the diff between a committed digest and the current
// working tree, split into lines for the view projection's diff modal.
func (e *Engine) Diff(ctx context.Context, digest model.Commit) ([]string, error) {
	text, err := e.store.Diff(ctx, string(digest))
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	lines := splitLines(text)
	return lines, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// Restore reverts the workspace to digest in three strictly ordered
// steps: (1) compute status, (2) back up every affected file, (3)
// checkout + delete files added since digest. An error in (2) aborts
// with no workspace mutation; an error in (3) leaves the workspace
// partially updated with the backup as the recovery path.
func (e *Engine) Restore(ctx context.Context, dataDir string, digest model.Commit, workspace string, now time.Time) error {
	status, err := e.store.Status(ctx, string(digest))
	if err != nil {
		return fmt.Errorf("restore: status: %w", err)
	}

	backupDir := filepath.Join(dataDir, "backup", now.UTC().Format("20060102T150405"))
	if err := backupFiles(workspace, backupDir, status); err != nil {
		return fmt.Errorf("restore: backup aborted, workspace untouched: %w", err)
	}

	if err := e.store.Checkout(ctx, string(digest)); err != nil {
		return fmt.Errorf("restore: checkout left workspace partially updated, backup at %s: %w", backupDir, err)
	}
	for _, s := range status {
		if s.Code == 'A' {
			if err := os.Remove(filepath.Join(workspace, s.Path)); err != nil && !os.IsNotExist(err) {
				e.log.Warn("restore: failed to remove added-since file", "path", s.Path, "error", err)
			}
		}
	}
	return nil
}

func backupFiles(workspace, backupDir string, status []vstore.StatusEntry) error {
	for _, s := range status {
		src := filepath.Join(workspace, s.Path)
		data, err := os.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue // nothing to back up
			}
			return fmt.Errorf("read %s: %w", src, err)
		}
		dst := filepath.Join(backupDir, s.Path)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", dst, err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
	}
	return nil
}
