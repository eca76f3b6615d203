// Package quota polls zero or more configured quota sources and publishes
// current usage entries for the view projection's usage panel. The only
// mutex-guarded shared structure in the whole engine lives here — every
// other component is single-owner. Pollers run on their own goroutines
// and never block the engine loop.
package quota

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Siiichenggg/cc-workbench/internal/model"
)

// ProviderKind discriminates the three recognized provider shapes.
type ProviderKind string

const (
	KindLocal    ProviderKind = "local"
	KindManual   ProviderKind = "manual"
	KindHTTPJSON ProviderKind = "httpjson"
)

// ProviderConfig is the discriminated configuration for one provider, as
// loaded from config.json's "providers" array.
type ProviderConfig struct {
	Kind ProviderKind

	Name string

	// local
	LimitTokens int64

	// manual
	UsedTokens int64

	// httpjson
	URL          string
	Method       string
	Headers      map[string]string
	Body         string
	UsedPointer  string
	LimitPointer string
	IntervalSecs int
}

const minPollInterval = 5 * time.Second

// cacheEntry tracks a provider's last known-good reading separately from
// its last error, so a failed poll never hides a previously successful
// numeric reading: lastErr is only consulted by Entries when entry.Used
// and entry.Limit are both still nil.
type cacheEntry struct {
	entry   model.UsageEntry
	lastErr string
}

// Aggregator owns the provider cache. It is the only structure in the
// engine legitimately shared across goroutines: the reducer reads it on
// every render, pollers write to it on every successful or failed poll.
type Aggregator struct {
	mu      sync.Mutex
	cache   map[string]cacheEntry
	configs []ProviderConfig
	log     *slog.Logger
	client  *http.Client
}

// New constructs an Aggregator from a provider configuration list and
// starts a background poller goroutine for every httpjson provider. When
// configs is empty, a single synthetic local provider is injected.
func New(ctx context.Context, configs []ProviderConfig, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if len(configs) == 0 {
		configs = []ProviderConfig{{Kind: KindLocal, Name: "local", LimitTokens: 200_000}}
	}
	a := &Aggregator{
		cache:   make(map[string]cacheEntry),
		configs: configs,
		log:     log,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, cfg := range configs {
		if cfg.Kind == KindManual {
			used, limit := cfg.UsedTokens, cfg.LimitTokens
			a.set(cfg.Name, model.UsageEntry{Provider: cfg.Name, Used: &used, Limit: &limit})
		}
		if cfg.Kind == KindHTTPJSON {
			a.set(cfg.Name, model.UsageEntry{Provider: cfg.Name, Status: "loading"})
			go a.pollLoop(ctx, cfg)
		}
	}
	return a
}

// set records a successful reading, clearing any previously recorded
// error for the provider since a fresh numeric entry supersedes it.
func (a *Aggregator) set(name string, e model.UsageEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[name] = cacheEntry{entry: e}
}

func (a *Aggregator) pollLoop(ctx context.Context, cfg ProviderConfig) {
	interval := time.Duration(cfg.IntervalSecs) * time.Second
	if interval < minPollInterval {
		interval = minPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	a.poll(ctx, cfg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.poll(ctx, cfg)
		}
	}
}

// poll fetches one reading for cfg. On failure the provider's last
// successful entry (if any) is left untouched in the cache; only the
// separate lastErr is updated, so a subsequent Entries() call keeps
// showing the last-good numbers instead of the error.
func (a *Aggregator) poll(ctx context.Context, cfg ProviderConfig) {
	used, limit, err := a.fetchOnce(ctx, cfg)
	if err != nil {
		a.log.Warn("quota poll failed", "provider", cfg.Name, "error", err)
		a.mu.Lock()
		prev := a.cache[cfg.Name]
		prev.entry.Provider = cfg.Name
		prev.lastErr = err.Error()
		a.cache[cfg.Name] = prev
		a.mu.Unlock()
		return
	}
	a.set(cfg.Name, model.UsageEntry{Provider: cfg.Name, Used: &used, Limit: &limit})
}

func (a *Aggregator) fetchOnce(ctx context.Context, cfg ProviderConfig) (used, limit int64, err error) {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	var bodyReader io.Reader
	if cfg.Body != "" {
		bodyReader = strings.NewReader(cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bodyReader)
	if err != nil {
		return 0, 0, err
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, err
	}
	if resp.StatusCode >= 300 {
		return 0, 0, &httpStatusError{code: resp.StatusCode}
	}
	used, err = extractIntFromJSON(data, cfg.UsedPointer)
	if err != nil {
		return 0, 0, err
	}
	limit, err = extractIntFromJSON(data, cfg.LimitPointer)
	if err != nil {
		return 0, 0, err
	}
	return used, limit, nil
}

func extractIntFromJSON(data []byte, pointer string) (int64, error) {
	return ExtractInt(data, pointer)
}

// Entries returns a point-in-time snapshot of every configured provider's
// state. local providers use contextTokens as their live "used" reading;
// all others use their cached value.
func (a *Aggregator) Entries(contextTokens int) []model.UsageEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]model.UsageEntry, 0, len(a.configs))
	for _, cfg := range a.configs {
		switch cfg.Kind {
		case KindLocal:
			used := int64(contextTokens)
			limit := cfg.LimitTokens
			entries = append(entries, model.UsageEntry{Provider: cfg.Name, Used: &used, Limit: &limit})
		default:
			c, ok := a.cache[cfg.Name]
			if !ok {
				entries = append(entries, model.UsageEntry{Provider: cfg.Name, Status: "loading"})
				continue
			}
			entries = append(entries, resolveDisplay(cfg.Name, c))
		}
	}
	return entries
}

// resolveDisplay picks what to show for one provider: the last
// successful numeric reading whenever one exists, falling back to the
// last error (or "loading" before any poll has ever succeeded) only when
// no numeric reading has ever landed.
func resolveDisplay(name string, c cacheEntry) model.UsageEntry {
	if c.entry.Used != nil && c.entry.Limit != nil {
		return model.UsageEntry{Provider: name, Used: c.entry.Used, Limit: c.entry.Limit}
	}
	status := c.entry.Status
	if c.lastErr != "" {
		status = c.lastErr
	}
	if status == "" {
		status = "loading"
	}
	return model.UsageEntry{Provider: name, Status: status}
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http status %d", e.code)
}
