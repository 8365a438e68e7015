package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reasonRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *reasonRecorder) record(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *reasonRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

func runWatcher(t *testing.T, cfg WatcherConfig) *reasonRecorder {
	t.Helper()
	rec := &reasonRecorder{}
	w := NewWatcher(cfg, rec.record)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return rec
}

func TestWatcherFiresAtStartupWhenFileExists(t *testing.T) {
	path := writeFile(t, []byte("Transaction id\nTX-1\n"))

	rec := runWatcher(t, WatcherConfig{Path: path, Debounce: 20 * time.Millisecond, PollInterval: time.Hour})

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{ReasonStartup}, rec.snapshot())
}

func TestWatcherSkipsStartupWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "students.csv")

	rec := runWatcher(t, WatcherConfig{Path: path, Debounce: 20 * time.Millisecond, PollInterval: time.Hour})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestWatcherCoalescesBurstOfWrites(t *testing.T) {
	path := writeFile(t, []byte("Transaction id\n"))
	rec := runWatcher(t, WatcherConfig{Path: path, Debounce: 150 * time.Millisecond, PollInterval: time.Hour})
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		_, err = f.WriteString("TX-1\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, []string{ReasonStartup, ReasonFileChange}, rec.snapshot())
}

func TestWatcherPollsWhenNotifyDisabled(t *testing.T) {
	path := writeFile(t, []byte("Transaction id\n"))
	rec := runWatcher(t, WatcherConfig{
		Path:          path,
		Debounce:      20 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
		DisableNotify: true,
	})
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("Transaction id\nTX-1\nTX-2\n"), 0o600))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonPoll, rec.snapshot()[1])
}

func TestWatcherDetectsReplaceByRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "students.csv")
	rec := runWatcher(t, WatcherConfig{Path: path, Debounce: 50 * time.Millisecond, PollInterval: time.Hour})

	time.Sleep(50 * time.Millisecond)

	tmp := filepath.Join(dir, "~students.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("Transaction id\nTX-1\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ReasonFileChange, rec.snapshot()[0])
}
