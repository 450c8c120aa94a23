package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
	"github.com/jaganraajan/rag-document-parser/internal/ingest"
	"github.com/jaganraajan/rag-document-parser/internal/output"
	"github.com/jaganraajan/rag-document-parser/internal/store"
	"github.com/jaganraajan/rag-document-parser/internal/ui"
)

func newIngestCmd() *cobra.Command {
	var (
		reset       bool
		noTUI       bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "ingest <chunks.jsonl>",
		Short: "Ingest chunk records into every configured index",
		Long: `Read one JSON chunk record per line ({"id", "chunk_text", "metadata"}) and
write each chunk to the local BM25 corpus, the sparse index and the dense
index. Chunk ids are reassigned sequentially after the existing corpus; an
id given in the input is kept in metadata as source_id.

Malformed lines are reported and skipped. A batch rejected by one backend is
reported and does not stop the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			f, err := os.Open(args[0])
			if err != nil {
				return ragerrors.New(ragerrors.ErrCodePathMissing, "cannot open "+args[0], err)
			}
			chunks, bad := store.DecodeChunks(f)
			_ = f.Close()
			for _, e := range bad {
				out.Warning(e.Error())
			}
			if len(chunks) == 0 {
				return ragerrors.New(ragerrors.ErrCodeEmptyInput, "no valid chunk records in "+args[0], nil)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			lock := ingest.NewFileLock(a.cfg.Paths.LockPath())
			if err := lock.MustTryLock(); err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			if reset {
				if err := a.clear(ctx, true, false); err != nil {
					return err
				}
				out.Success("Cleared local state")
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			progress := ui.NewRenderer(ui.Config{
				Output:      cmd.OutOrStdout(),
				ForcePlain:  noTUI,
				Title:       filepath.Base(args[0]),
				OnInterrupt: cancel,
			})
			p, err := a.pipeline(progress.Update)
			if err != nil {
				return err
			}

			if err := progress.Start(runCtx); err != nil {
				return err
			}
			res, err := p.Run(runCtx, chunks)
			if res != nil {
				for _, fail := range res.Failed {
					progress.Warn(fmt.Sprintf("%s batch %d-%d failed: %s", fail.Backend, fail.Start, fail.End, fail.Error))
				}
			}
			_ = progress.Stop()
			a.writeMetrics(metricsFile)
			if err != nil {
				return err
			}

			out.Successf("Ingested %d of %d chunks in %s", res.Stored, res.Total, res.Duration.Round(time.Millisecond))
			out.KeyValue("vocabulary", res.VocabSize)
			if res.SparseSkipped > 0 {
				out.KeyValue("sparse skipped", res.SparseSkipped)
			}
			if len(bad) > 0 {
				out.KeyValue("malformed lines", len(bad))
			}
			slog.Info("ingest_command_done", slog.Int("stored", res.Stored), slog.Int("failed_batches", len(res.Failed)))
			if len(res.Failed) > 0 {
				return ragerrors.New(ragerrors.ErrCodeBackendUnavailable, fmt.Sprintf("%d batches failed", len(res.Failed)), nil).
					WithSuggestion("see the warnings above; chunks of failed batches are missing from that backend only")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the local corpus, indexes and vocabulary first")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print plain progress lines instead of the interactive panel")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write prometheus metrics to this textfile")
	return cmd
}
