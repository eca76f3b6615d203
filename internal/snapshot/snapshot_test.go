package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Siiichenggg/cc-workbench/internal/vstore"
)

func newTestEngine(t *testing.T) (*Engine, string, context.Context) {
	t.Helper()
	ctx := context.Background()
	workspace := t.TempDir()
	store, err := vstore.Open(ctx, workspace)
	require.NoError(t, err)
	e := New(ctx, store, nil, 8)
	return e, workspace, ctx
}

func TestSnapshotDiffRestore(t *testing.T) {
	e, workspace, ctx := newTestEngine(t)
	mainPath := filepath.Join(workspace, "main.txt")

	require.NoError(t, os.WriteFile(mainPath, []byte("hello"), 0o644))
	e.Enqueue(Job{PromptID: "p1", PromptIdx: 1})
	res1 := <-e.Results()
	require.True(t, res1.Commit.Valid())

	require.NoError(t, os.WriteFile(mainPath, []byte("hello world"), 0o644))
	e.Enqueue(Job{PromptID: "p2", PromptIdx: 2})
	res2 := <-e.Results()
	require.True(t, res2.Commit.Valid())
	require.NotEqual(t, res1.Commit, res2.Commit)

	diffLines, err := e.Diff(ctx, res1.Commit)
	require.NoError(t, err)
	joined := strings.Join(diffLines, "\n")
	require.Contains(t, joined, "hello world")

	dataDir := filepath.Join(workspace, ".cc-workbench")
	require.NoError(t, e.Restore(ctx, dataDir, res1.Commit, workspace, time.Now()))

	data, err := os.ReadFile(mainPath)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestRestoreRemovesAddedFiles(t *testing.T) {
	e, workspace, ctx := newTestEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "a.txt"), []byte("a"), 0o644))
	e.Enqueue(Job{PromptID: "p1", PromptIdx: 1})
	res1 := <-e.Results()

	newFile := filepath.Join(workspace, "b.txt")
	require.NoError(t, os.WriteFile(newFile, []byte("b"), 0o644))
	e.Enqueue(Job{PromptID: "p2", PromptIdx: 2})
	<-e.Results()

	dataDir := filepath.Join(workspace, ".cc-workbench")
	require.NoError(t, e.Restore(ctx, dataDir, res1.Commit, workspace, time.Now()))

	_, err := os.Stat(newFile)
	require.True(t, os.IsNotExist(err), "file added after the restored commit should be removed")
}

func TestEmptyCommitsAllowed(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Enqueue(Job{PromptID: "p1", PromptIdx: 1})
	res := <-e.Results()
	require.True(t, res.Commit.Valid(), "a commit with no file changes must still be produced")
}
