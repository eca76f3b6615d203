package ptypump

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPumpEchoesOutput(t *testing.T) {
	ctx := context.Background()
	p, err := Start(ctx, "/bin/sh", []string{"-c", "echo hello-from-child"}, t.TempDir(), 80, 24)
	require.NoError(t, err)
	defer p.Close()

	var got strings.Builder
	deadline := time.After(3 * time.Second)
	for {
		select {
		case chunk, ok := <-p.Output():
			if !ok {
				require.Contains(t, got.String(), "hello-from-child")
				return
			}
			got.Write(chunk)
		case <-deadline:
			t.Fatalf("timed out waiting for child output, got so far: %q", got.String())
		}
	}
}

func TestPumpSendAndResize(t *testing.T) {
	ctx := context.Background()
	p, err := Start(ctx, "/bin/cat", nil, t.TempDir(), 80, 24)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Send([]byte("ping\n")))
	require.NoError(t, p.Resize(100, 40))

	select {
	case chunk := <-p.Output():
		require.Contains(t, string(chunk), "ping")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for cat to echo input")
	}
}
