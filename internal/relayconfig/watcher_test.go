package relayconfig

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type capturedReload struct {
	mu    sync.Mutex
	calls []*Config
	ch    chan struct{}
}

func newCapturedReload() *capturedReload {
	return &capturedReload{ch: make(chan struct{}, 10)}
}

func (c *capturedReload) fn(cfg *Config, _ []error) {
	c.mu.Lock()
	c.calls = append(c.calls, cfg)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *capturedReload) waitForCall(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.ch:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listenAddr: \":8080\"\n"), 0o644))

	captured := newCapturedReload()
	w := NewWatcher(path, captured.fn, nil, WithDebounce(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listenAddr: \":9090\"\n"), 0o644))

	captured.waitForCall(t, 2*time.Second)
	require.Len(t, captured.calls, 1)
	require.Equal(t, ":9090", captured.calls[0].Server.ListenAddr)
}

func TestWatcherIgnoresUnrelatedFilesInSameDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	captured := newCapturedReload()
	w := NewWatcher(path, captured.fn, nil, WithDebounce(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("noise"), 0o644))

	select {
	case <-captured.ch:
		t.Fatal("unexpected reload triggered by an unrelated file")
	case <-time.After(100 * time.Millisecond):
	}
}
