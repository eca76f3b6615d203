// Package config loads the engine's JSON configuration file. Discovery is
// first-hit-wins across the workspace-local and home candidates: a
// workspace-local file fully shadows the home file rather than being
// layered over it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Siiichenggg/cc-workbench/internal/quota"
)

const (
	DefaultContextLimit      = 200_000
	DefaultCompressThreshold = 0.85
	DefaultUsagePollSeconds  = 30
	minUsagePollSeconds      = 5
	dataDirName              = ".cc-workbench"
	configFileName           = "config.json"
)

// Config is the engine's resolved runtime configuration.
type Config struct {
	ContextLimit      int64                  `json:"context_limit,omitempty"`
	CompressThreshold float64                `json:"compress_threshold,omitempty"`
	UsagePollSeconds  int                    `json:"usage_poll_seconds,omitempty"`
	Providers         []rawProvider          `json:"providers,omitempty"`
	Resolved          []quota.ProviderConfig `json:"-"`
}

// rawProvider is the on-disk discriminated provider shape.
type rawProvider struct {
	Type         string            `json:"type"`
	Name         string            `json:"name,omitempty"`
	LimitTokens  int64             `json:"limit_tokens,omitempty"`
	UsedTokens   int64             `json:"used_tokens,omitempty"`
	URL          string            `json:"url,omitempty"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	UsedPointer  string            `json:"used_pointer,omitempty"`
	LimitPointer string            `json:"limit_pointer,omitempty"`
}

// Path returns the config file path that Load would read for workspace,
// or "" if neither candidate exists. Exposed for `ccwb config`.
func Path(workspace string) string {
	candidates, _ := candidatePaths(workspace)
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func candidatePaths(workspace string) ([]string, error) {
	var out []string
	if workspace != "" {
		out = append(out, filepath.Join(workspace, dataDirName, configFileName))
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return out, nil
	}
	out = append(out, filepath.Join(home, dataDirName, configFileName))
	return out, nil
}

// Load resolves the config for workspace: first-hit-wins across the
// candidate paths, falling back to built-in defaults when neither exists.
func Load(workspace string) (*Config, error) {
	candidates, err := candidatePaths(workspace)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("config: read %s: %w", p, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", p, err)
		}
		break
	}

	applyDefaults(cfg)
	cfg.Resolved, err = resolveProviders(cfg.Providers, cfg.UsagePollSeconds, cfg.ContextLimit)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = DefaultContextLimit
	}
	if cfg.CompressThreshold <= 0 {
		cfg.CompressThreshold = DefaultCompressThreshold
	}
	if cfg.UsagePollSeconds <= 0 {
		cfg.UsagePollSeconds = DefaultUsagePollSeconds
	}
	if cfg.UsagePollSeconds < minUsagePollSeconds {
		cfg.UsagePollSeconds = minUsagePollSeconds
	}
}

func resolveProviders(raw []rawProvider, pollSeconds int, contextLimit int64) ([]quota.ProviderConfig, error) {
	if len(raw) == 0 {
		// No providers configured: inject a synthetic local provider
		// tracking the configured context limit.
		return []quota.ProviderConfig{{Kind: quota.KindLocal, Name: "local", LimitTokens: contextLimit}}, nil
	}
	out := make([]quota.ProviderConfig, 0, len(raw))
	for i, r := range raw {
		name := r.Name
		if name == "" {
			name = r.Type
		}
		switch r.Type {
		case "local":
			limit := r.LimitTokens
			if limit <= 0 {
				limit = contextLimit
			}
			out = append(out, quota.ProviderConfig{Kind: quota.KindLocal, Name: name, LimitTokens: limit})
		case "manual":
			out = append(out, quota.ProviderConfig{
				Kind: quota.KindManual, Name: name,
				UsedTokens: r.UsedTokens, LimitTokens: r.LimitTokens,
			})
		case "httpjson":
			if r.URL == "" || r.UsedPointer == "" || r.LimitPointer == "" {
				return nil, fmt.Errorf("config: providers[%d]: httpjson requires url, used_pointer, and limit_pointer", i)
			}
			out = append(out, quota.ProviderConfig{
				Kind: quota.KindHTTPJSON, Name: name,
				URL: r.URL, Method: r.Method, Headers: r.Headers, Body: r.Body,
				UsedPointer: r.UsedPointer, LimitPointer: r.LimitPointer,
				IntervalSecs: pollSeconds,
			})
		default:
			return nil, fmt.Errorf("config: providers[%d]: unknown type %q", i, r.Type)
		}
	}
	return out, nil
}

// DataDir returns <workspace>/.cc-workbench, the engine's own data
// directory (sqlite db, bare repo, restore backups).
func DataDir(workspace string) string {
	return filepath.Join(workspace, dataDirName)
}
