package watcher

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

type collector struct {
	mu    sync.Mutex
	calls [][]string
}

func (c *collector) add(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, paths)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *collector) last() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	// Given: a debouncer with a short window
	c := &collector{}
	d := NewDebouncer(30*time.Millisecond, c.add)

	// When: the same path is added repeatedly plus one other
	for i := 0; i < 5; i++ {
		d.Add("a")
	}
	d.Add("b")

	// Then: one flush carries both paths once
	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b"}, c.last())
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(20*time.Millisecond, c.add)
	d.Add("a")
	d.Stop()
	d.Add("b")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, c.count())
}

func TestNew_RejectsFilesInDifferentDirectories(t *testing.T) {
	_, err := New([]string{"/a/x.json", "/b/y.json"}, func([]string) {}, Options{})
	assert.Error(t, err)
	_, err = New(nil, func([]string) {}, Options{})
	assert.Error(t, err)
}

func runWatcherTest(t *testing.T, opts Options) {
	t.Helper()
	dir := t.TempDir()
	corpus := filepath.Join(dir, "chunks_corpus.jsonl")
	other := filepath.Join(dir, "unrelated.txt")
	c := &collector{}
	w, err := New([]string{corpus, filepath.Join(dir, "vocab.json")}, c.add, opts)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	// Unwatched files never trigger.
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(corpus, []byte(`{"id":"1","chunk_text":"a"}`+"\n"), 0o644))

	require.Eventually(t, func() bool { return c.count() >= 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{corpus}, c.last())
}

func TestCorpusWatcher_Fsnotify(t *testing.T) {
	runWatcherTest(t, Options{Debounce: 20 * time.Millisecond})
}

func TestCorpusWatcher_Polling(t *testing.T) {
	runWatcherTest(t, Options{Debounce: 20 * time.Millisecond, PollInterval: 20 * time.Millisecond, ForcePolling: true})
}

func TestCorpusWatcher_PollingSeesWriteRightAfterStart(t *testing.T) {
	for i := 0; i < 5; i++ {
		// Given: a poller with an existing corpus file
		dir := t.TempDir()
		corpus := filepath.Join(dir, "chunks_corpus.jsonl")
		require.NoError(t, os.WriteFile(corpus, []byte("{}\n"), 0o644))
		c := &collector{}
		w, err := New([]string{corpus}, c.add, Options{Debounce: 10 * time.Millisecond, PollInterval: 10 * time.Millisecond, ForcePolling: true})
		require.NoError(t, err)
		require.NoError(t, w.Start(context.Background()))

		// When: the file grows before the poller's first tick
		require.NoError(t, os.WriteFile(corpus, []byte("{}\n{}\n"), 0o644))

		// Then: the change is reported
		require.Eventually(t, func() bool { return c.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{corpus}, c.last())
		require.NoError(t, w.Stop())
	}
}

func TestCorpusWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "vocab.json")}, func([]string) {}, Options{ForcePolling: true})
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.Polling())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
