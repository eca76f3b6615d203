package sessionlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Siiichenggg/cc-workbench/internal/model"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	l, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpenWorkspaceIsIdempotentByPath(t *testing.T) {
	l := openTestLog(t)

	id1, err := l.OpenWorkspace("/tmp/project-a")
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := l.OpenWorkspace("/tmp/project-a")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := l.OpenWorkspace("/tmp/project-b")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestAppendPromptsAndSnapshotsRoundTrip(t *testing.T) {
	l := openTestLog(t)

	wsID, err := l.OpenWorkspace("/tmp/project")
	require.NoError(t, err)
	sessID, err := l.StartSession(wsID)
	require.NoError(t, err)

	require.NoError(t, l.AppendPrompt(sessID, 0, "user", "hello"))
	require.NoError(t, l.AppendPrompt(sessID, 1, "assistant", "hi there"))
	require.NoError(t, l.AppendSnapshot(sessID, 0, model.Commit("deadbeef")))

	prompts, err := l.ListPrompts(sessID)
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	require.Equal(t, "user", prompts[0].Role)
	require.Equal(t, "hello", prompts[0].Content)
	require.Equal(t, "assistant", prompts[1].Role)

	snaps, err := l.ListSnapshots(sessID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, model.Commit("deadbeef"), snaps[0].Commit)
}

func TestAppendSnapshotRejectsInvalidCommit(t *testing.T) {
	l := openTestLog(t)
	wsID, err := l.OpenWorkspace("/tmp/project")
	require.NoError(t, err)
	sessID, err := l.StartSession(wsID)
	require.NoError(t, err)

	err = l.AppendSnapshot(sessID, 0, model.Commit(""))
	require.Error(t, err)
}

func TestMigrationsAreIdempotentAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "reopen.db")
	l1, err := Open(dsn)
	require.NoError(t, err)
	wsID, err := l1.OpenWorkspace("/tmp/x")
	require.NoError(t, err)
	require.NoError(t, l1.Close())

	l2, err := Open(dsn)
	require.NoError(t, err)
	defer l2.Close()

	gotID, err := l2.OpenWorkspace("/tmp/x")
	require.NoError(t, err)
	require.Equal(t, wsID, gotID)
}
