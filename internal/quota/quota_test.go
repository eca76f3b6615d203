package quota

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAggregator_LocalProviderUsesLiveContextTokens(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(ctx, []ProviderConfig{{Kind: KindLocal, Name: "local", LimitTokens: 1000}}, nil)

	entries := a.Entries(250)
	require.Len(t, entries, 1)
	require.Equal(t, "local", entries[0].Provider)
	require.NotNil(t, entries[0].Used)
	require.Equal(t, int64(250), *entries[0].Used)
	require.Equal(t, int64(1000), *entries[0].Limit)
}

func TestAggregator_EmptyConfigInjectsSyntheticLocal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(ctx, nil, nil)
	entries := a.Entries(10)
	require.Len(t, entries, 1)
	require.Equal(t, "local", entries[0].Provider)
	require.Equal(t, int64(200_000), *entries[0].Limit)
}

func TestAggregator_ManualProviderIsStatic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(ctx, []ProviderConfig{{Kind: KindManual, Name: "api", UsedTokens: 42, LimitTokens: 100}}, nil)
	entries := a.Entries(999999)
	require.Len(t, entries, 1)
	require.Equal(t, int64(42), *entries[0].Used)
	require.Equal(t, int64(100), *entries[0].Limit)
}

func TestAggregator_HTTPJSONProviderPollsAndExtracts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"used":123,"limit":"456"}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(ctx, []ProviderConfig{{
		Kind:         KindHTTPJSON,
		Name:         "anthropic",
		URL:          srv.URL,
		UsedPointer:  "/data/used",
		LimitPointer: "/data/limit",
		IntervalSecs: 5,
	}}, nil)

	require.Eventually(t, func() bool {
		e := a.Entries(0)[0]
		return e.Used != nil && *e.Used == 123
	}, 2*time.Second, 20*time.Millisecond)

	entries := a.Entries(0)
	require.Equal(t, int64(456), *entries[0].Limit)
}

func TestAggregator_HTTPJSONFailureRetainsLastGoodValue(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"used":10,"limit":20}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(ctx, []ProviderConfig{{
		Kind:         KindHTTPJSON,
		Name:         "p",
		URL:          srv.URL,
		UsedPointer:  "/used",
		LimitPointer: "/limit",
		IntervalSecs: 5,
	}}, nil)

	require.Eventually(t, func() bool {
		e := a.Entries(0)[0]
		return e.Used != nil && *e.Used == 10
	}, 2*time.Second, 20*time.Millisecond)

	fail = true
	a.poll(ctx, a.configs[0])

	entries := a.Entries(0)
	require.Empty(t, entries[0].Status, "a cached numeric reading must keep displaying, not the new error")
	require.Equal(t, int64(10), *entries[0].Used)
	require.Equal(t, int64(20), *entries[0].Limit)

	a.mu.Lock()
	lastErr := a.cache["p"].lastErr
	a.mu.Unlock()
	require.Equal(t, "http status 500", lastErr, "the error is tracked internally even though it isn't displayed")
}

func TestAggregator_HTTPJSONBeforeFirstPollReportsLoading(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte(`{"used":1,"limit":2}`))
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(ctx, []ProviderConfig{{
		Kind:         KindHTTPJSON,
		Name:         "slow",
		URL:          srv.URL,
		UsedPointer:  "/used",
		LimitPointer: "/limit",
		IntervalSecs: 5,
	}}, nil)

	entries := a.Entries(0)
	require.Equal(t, "loading", entries[0].Status)
}

func TestAggregator_HTTPJSONFailureBeforeAnySuccessSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(ctx, []ProviderConfig{{
		Kind:         KindHTTPJSON,
		Name:         "p",
		URL:          srv.URL,
		UsedPointer:  "/used",
		LimitPointer: "/limit",
		IntervalSecs: 5,
	}}, nil)

	require.Eventually(t, func() bool {
		return a.Entries(0)[0].Status == "http status 500"
	}, 2*time.Second, 20*time.Millisecond, "with no successful entry yet, the error should be the displayed status")
}
