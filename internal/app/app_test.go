package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/command"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/localsession"
	"github.com/vk/flowgridgo/internal/nodeid"
)

// safeBuffer is a thread-safe buffer for capturing log and print output.
type safeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// setupAppTest creates a new app instance with debug logging captured.
func setupAppTest(t *testing.T, cfg *Config) (*App, *safeBuffer) {
	t.Helper()

	out := &safeBuffer{}
	cfg.LogLevel = "debug"
	a, err := NewApp(out, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("FLOWGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), out.String())
		}
	})
	return a, out
}

// writeCounterGraph saves counter_0 -> print_0 to dir using a's registry.
func writeCounterGraph(t *testing.T, a *App, dir string) string {
	t.Helper()
	ctx := ctxlog.WithLogger(context.Background(), a.logger)
	sess, err := localsession.New(ctx, a.Registry(), localsession.WithPaused(true))
	require.NoError(t, err)
	defer sess.Close()

	d := sess.Dispatcher
	require.NoError(t, d.Execute(ctx, &command.AddNode{NodeType: "counter"}))
	require.NoError(t, d.Execute(ctx, &command.AddNode{NodeType: "print"}))
	require.NoError(t, d.Execute(ctx, &command.AddConnection{
		From: nodeid.MustParse("counter_0:|:out_0"),
		To:   nodeid.MustParse("print_0:|:in_0"),
	}))

	path := filepath.Join(dir, "graph.hcl")
	require.NoError(t, sess.SaveFile(path))
	return path
}

func TestNewApp_RegistersCoreModules(t *testing.T) {
	a, _ := setupAppTest(t, &Config{GraphPath: "unused.hcl"})
	assert.Equal(t, []string{"counter", "env_vars", "http_request", "print", "relay", "sum"}, a.Registry().Types())
}

func TestRun_TicksLoadedGraph(t *testing.T) {
	cfg := &Config{TickFrequency: 50, RunFor: 400 * time.Millisecond}
	a, out := setupAppTest(t, cfg)
	cfg.GraphPath = writeCounterGraph(t, a, t.TempDir())

	require.NoError(t, a.Run(context.Background()))

	logs := out.String()
	assert.Contains(t, logs, "Graph loaded successfully.")
	assert.Contains(t, logs, "Run duration elapsed.")
	assert.Contains(t, logs, "1: 0\n")
	assert.Contains(t, logs, "2: 1\n")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	a, out := setupAppTest(t, &Config{})
	a.config.GraphPath = writeCounterGraph(t, a, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Graph running.")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Contains(t, out.String(), "Shutdown requested.")
}

func TestRun_MissingGraphFile(t *testing.T) {
	a, _ := setupAppTest(t, &Config{GraphPath: filepath.Join(t.TempDir(), "missing.hcl")})
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load graph")
}
