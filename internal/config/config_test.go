package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Siiichenggg/cc-workbench/internal/quota"
)

func TestLoad_DefaultsWithNoConfigFile(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(ws)
	require.NoError(t, err)
	require.EqualValues(t, DefaultContextLimit, cfg.ContextLimit)
	require.Equal(t, DefaultCompressThreshold, cfg.CompressThreshold)
	require.Equal(t, DefaultUsagePollSeconds, cfg.UsagePollSeconds)
	require.Len(t, cfg.Resolved, 1)
	require.Equal(t, quota.KindLocal, cfg.Resolved[0].Kind)
	require.EqualValues(t, DefaultContextLimit, cfg.Resolved[0].LimitTokens)
}

func TestLoad_SyntheticLocalProviderTracksContextLimit(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	writeConfig(t, filepath.Join(ws, dataDirName, configFileName), map[string]any{"context_limit": 50_000})

	cfg, err := Load(ws)
	require.NoError(t, err)
	require.Len(t, cfg.Resolved, 1)
	require.EqualValues(t, 50_000, cfg.Resolved[0].LimitTokens)
}

func TestLoad_WorkspaceFileWinsOverHomeFile(t *testing.T) {
	ws := t.TempDir()
	home := t.TempDir()
	t.Setenv("HOME", home)

	writeConfig(t, filepath.Join(home, dataDirName, configFileName), map[string]any{"context_limit": 1111})
	writeConfig(t, filepath.Join(ws, dataDirName, configFileName), map[string]any{"context_limit": 2222})

	cfg, err := Load(ws)
	require.NoError(t, err)
	require.EqualValues(t, 2222, cfg.ContextLimit)
}

func TestLoad_UsagePollFlooredToMinimum(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	writeConfig(t, filepath.Join(ws, dataDirName, configFileName), map[string]any{"usage_poll_seconds": 1})

	cfg, err := Load(ws)
	require.NoError(t, err)
	require.Equal(t, minUsagePollSeconds, cfg.UsagePollSeconds)
}

func TestLoad_ResolvesProvidersByType(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	writeConfig(t, filepath.Join(ws, dataDirName, configFileName), map[string]any{
		"providers": []map[string]any{
			{"type": "local", "limit_tokens": 50000},
			{"type": "manual", "name": "contract", "limit_tokens": 1000, "used_tokens": 10},
			{"type": "httpjson", "name": "svc", "url": "http://example.com", "used_pointer": "/u", "limit_pointer": "/l"},
		},
	})

	cfg, err := Load(ws)
	require.NoError(t, err)
	require.Len(t, cfg.Resolved, 3)
	require.Equal(t, quota.KindLocal, cfg.Resolved[0].Kind)
	require.Equal(t, quota.KindManual, cfg.Resolved[1].Kind)
	require.Equal(t, quota.KindHTTPJSON, cfg.Resolved[2].Kind)
}

func TestLoad_RejectsHTTPJSONMissingRequiredFields(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	writeConfig(t, filepath.Join(ws, dataDirName, configFileName), map[string]any{
		"providers": []map[string]any{{"type": "httpjson", "name": "svc"}},
	})

	_, err := Load(ws)
	require.Error(t, err)
}

func writeConfig(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
