package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultPollInterval = 2 * time.Second
)

type Options struct {
	Debounce     time.Duration
	PollInterval time.Duration
	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// CorpusWatcher calls OnChange with the changed file paths after any of the
// watched files is written, created, renamed or removed.
type CorpusWatcher struct {
	dir      string
	files    map[string]struct{}
	opts     Options
	onChange func([]string)

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	polling bool
}

// New watches files, which must all live in one directory.
func New(files []string, onChange func([]string), opts Options) (*CorpusWatcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	w := &CorpusWatcher{
		dir:      filepath.Dir(files[0]),
		files:    make(map[string]struct{}, len(files)),
		opts:     opts,
		onChange: onChange,
	}
	for _, f := range files {
		if filepath.Dir(f) != w.dir {
			return nil, fmt.Errorf("watched files must share a directory: %s", f)
		}
		w.files[filepath.Clean(f)] = struct{}{}
	}
	return w, nil
}

// Start begins watching in the background until ctx is done or Stop.
func (w *CorpusWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watched directory: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	deb := NewDebouncer(w.opts.Debounce, func(paths []string) {
		sort.Strings(paths)
		slog.Info("state_files_changed", slog.Any("paths", paths))
		w.onChange(paths)
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancel = cancel
	w.done = make(chan struct{})

	if !w.opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fsw.Add(w.dir)
		}
		if err == nil {
			w.fsw = fsw
			go w.runFsnotify(ctx, deb)
			return nil
		}
		if fsw != nil {
			_ = fsw.Close()
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.polling = true
	go w.runPolling(ctx, deb, w.snapshot())
	return nil
}

func (w *CorpusWatcher) runFsnotify(ctx context.Context, deb *Debouncer) {
	defer close(w.done)
	defer deb.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if _, watched := w.files[filepath.Clean(ev.Name)]; !watched {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				deb.Add(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

type fileStamp struct {
	mod  time.Time
	size int64
	ok   bool
}

func stamp(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{mod: info.ModTime(), size: info.Size(), ok: true}
}

// snapshot stamps every watched file. Start takes it before returning so a
// write that follows Start is always compared against the older state.
func (w *CorpusWatcher) snapshot() map[string]fileStamp {
	last := make(map[string]fileStamp, len(w.files))
	for f := range w.files {
		last[f] = stamp(f)
	}
	return last
}

func (w *CorpusWatcher) runPolling(ctx context.Context, deb *Debouncer, last map[string]fileStamp) {
	defer close(w.done)
	defer deb.Stop()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for f, prev := range last {
				cur := stamp(f)
				if cur != prev {
					last[f] = cur
					deb.Add(f)
				}
			}
		}
	}
}

// Polling reports whether the fallback poller is in use.
func (w *CorpusWatcher) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polling
}

// Stop ends watching and waits for the event loop to exit.
func (w *CorpusWatcher) Stop() error {
	w.mu.Lock()
	cancel, done, fsw := w.cancel, w.done, w.fsw
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	if fsw != nil {
		return fsw.Close()
	}
	return nil
}
