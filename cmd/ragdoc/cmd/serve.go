package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jaganraajan/rag-document-parser/internal/config"
	"github.com/jaganraajan/rag-document-parser/internal/logging"
	"github.com/jaganraajan/rag-document-parser/internal/mcp"
	"github.com/jaganraajan/rag-document-parser/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		watch       bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve hybrid_search, bm25_search and corpus_stats over MCP stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout. Logs go to
~/.ragdoc/logs/ragdoc.log only, since stdio carries the protocol.

With --watch the corpus and vocabulary files are watched and reloaded after
another process ingests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, watch, metricsAddr)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the corpus and vocabulary when they change on disk")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose prometheus metrics on this address, e.g. 127.0.0.1:9464")
	return cmd
}

func runServe(ctx context.Context, watch bool, metricsAddr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupServeMode(level)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("serve_open_failed", slog.String("error", err.Error()))
		return err
	}
	defer a.Close()

	srv, err := mcp.NewServer(a.engine, mcp.StatsFunc(a.stats))
	if err != nil {
		return err
	}

	if watch {
		w, err := newStateWatcher(a)
		if err != nil {
			slog.Warn("watch_disabled", slog.String("error", err.Error()))
		} else if err := w.Start(ctx); err != nil {
			slog.Warn("watch_disabled", slog.String("error", err.Error()))
		} else {
			defer func() { _ = w.Stop() }()
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return srv.Serve(gctx)
	})
	if metricsAddr != "" {
		httpSrv := &http.Server{Addr: metricsAddr, Handler: a.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("metrics_listening", slog.String("addr", metricsAddr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// newStateWatcher reloads the BM25 corpus, the vocabulary and, for the local
// dense backend, the HNSW graph after their files change.
func newStateWatcher(a *app) (*watcher.CorpusWatcher, error) {
	files := []string{
		a.cfg.Paths.CorpusPath(),
		a.cfg.Paths.VocabularyPath(),
		a.cfg.Paths.DocumentFrequencyPath(),
	}
	watchVectors := false
	if a.localDense != nil {
		vec := a.cfg.Paths.VectorIndexPath()
		if filepath.Dir(vec) == filepath.Dir(files[0]) {
			// the graph is written before its .meta, so .meta marks a complete save
			files = append(files, vec, vec+".meta")
			watchVectors = true
		} else {
			slog.Warn("vector_index_not_watched",
				slog.String("path", vec),
				slog.String("reason", "outside the corpus directory"))
		}
	}
	debounce := config.Duration(a.cfg.Server.WatchDebounce, watcher.DefaultDebounce)
	return watcher.New(files, func(changed []string) {
		a.corpus.Invalidate()
		a.vocab.Reload()
		if watchVectors {
			if err := a.localDense.Reload(); err != nil {
				slog.Warn("vector_index_reload_failed", slog.String("error", err.Error()))
			}
		}
		if _, err := a.stats(); err != nil {
			slog.Warn("state_reload_failed", slog.String("error", err.Error()))
			return
		}
		slog.Info("state_reloaded", slog.Int("files", len(changed)))
	}, watcher.Options{Debounce: debounce})
}
