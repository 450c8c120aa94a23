package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaganraajan/rag-document-parser/internal/config"
	"github.com/jaganraajan/rag-document-parser/internal/embed"
	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
	"github.com/jaganraajan/rag-document-parser/internal/pinecone"
	"github.com/jaganraajan/rag-document-parser/internal/preflight"
	"github.com/jaganraajan/rag-document-parser/internal/search"
	"github.com/jaganraajan/rag-document-parser/internal/store"
)

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, local state and backend reachability",
		Long: `Run the environment checks: configuration, credentials, the data
directory, free disk space, the ingest lock, the persisted corpus and
vocabulary, and one probe per configured backend.

Exits non-zero only when a required check fails. Unreachable backends are
warnings because search degrades without them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := projectDir()
			if err != nil {
				return err
			}
			cfg, err := config.LoadUnvalidated(dir)
			if err != nil {
				return err
			}
			checker := preflight.New(cfg, append(probes(cfg),
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose))...)

			results := checker.RunAll(cmd.Context())
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"status": preflight.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if preflight.HasCriticalFailures(results) {
				return ragerrors.New(ragerrors.ErrCodeConfigInvalid, "required checks failed", nil).
					WithSuggestion("fix the FAIL lines above and run ragdoc doctor again")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")
	return cmd
}

// probes builds one probe per configured backend, using the same clients the
// engine uses.
func probes(cfg *config.Config) []preflight.Option {
	var opts []preflight.Option

	switch cfg.Dense.Backend {
	case config.BackendLocal:
		ollama := embed.DefaultOllamaConfig()
		ollama.Host = cfg.Dense.OllamaHost
		ollama.Model = cfg.Dense.Model
		e := embed.NewOllamaEmbedder(ollama)
		opts = append(opts, preflight.WithDenseProbe(func(ctx context.Context) (string, error) {
			if err := e.Health(ctx); err != nil {
				return "", err
			}
			return e.ModelName() + " available", nil
		}))
	case config.BackendPinecone:
		idx := pinecone.NewDenseIndex(pinecone.Config{
			APIKey:    cfg.APIKey,
			Host:      cfg.Dense.IndexHost,
			IndexName: cfg.Dense.IndexName,
			Namespace: cfg.Dense.Namespace,
		})
		opts = append(opts, preflight.WithDenseProbe(countProbe(idx.Count, idx.Close, cfg.Dense.Namespace)))
	}

	switch cfg.Sparse.Backend {
	case config.BackendLocal:
		opts = append(opts, preflight.WithSparseProbe(func(ctx context.Context) (string, error) {
			idx, err := store.NewSQLiteSparseIndex(cfg.Paths.SparseDBPath(), cfg.Ingest.MaxStoredText)
			if err != nil {
				return "", err
			}
			defer func() { _ = idx.Close() }()
			n, err := idx.Count(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d vectors", n), nil
		}))
	case config.BackendPinecone:
		idx := pinecone.NewSparseIndex(pinecone.Config{
			APIKey:    cfg.APIKey,
			Host:      cfg.Sparse.IndexHost,
			IndexName: cfg.Sparse.IndexName,
			Namespace: cfg.Sparse.Namespace,
		})
		opts = append(opts, preflight.WithSparseProbe(countProbe(idx.Count, idx.Close, cfg.Sparse.Namespace)))
	}

	if ep := cfg.CrossEncoder.Endpoint; ep != "" {
		scorer := search.NewHTTPPairScorer(search.HTTPPairScorerConfig{
			Endpoint: ep,
			Timeout:  config.Duration(cfg.CrossEncoder.Timeout, search.DefaultCrossEncoderTimeout),
		})
		opts = append(opts, preflight.WithCrossEncoderProbe(func(ctx context.Context) (string, error) {
			if err := scorer.Health(ctx); err != nil {
				return "", err
			}
			return "healthy", nil
		}))
	}
	return opts
}

// countProbe reports the namespace size and releases the connection after.
func countProbe(count func(context.Context) (int, error), closeFn func() error, namespace string) preflight.Probe {
	return func(ctx context.Context) (string, error) {
		defer func() { _ = closeFn() }()
		n, err := count(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d records in namespace %s", n, namespace), nil
	}
}
