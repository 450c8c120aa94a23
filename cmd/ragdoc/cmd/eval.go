package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaganraajan/rag-document-parser/internal/eval"
	"github.com/jaganraajan/rag-document-parser/internal/output"
)

func newEvalCmd() *cobra.Command {
	var (
		topK       int
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "eval <dataset.json|dataset.csv>",
		Short: "Compare vector, BM25 and hybrid retrieval on a labeled dataset",
		Long: `Run every query of the dataset through vector-only, BM25-only and hybrid
retrieval and report coverage@k, precision@k, MRR@k and latency per method.
A result is relevant when its text contains one of the item's
relevant_substrings, case-insensitively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := eval.LoadDataset(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			runner := eval.NewRunner(topK, eval.EngineMethods(a.engine)...)
			results, err := runner.Run(cmd.Context(), items)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Header(fmt.Sprintf("%d queries, k=%d", len(items), runner.K()))
			for _, s := range runner.Summarize(results) {
				out.Statusf("", "%-7s coverage %.3f  precision %.3f  mrr %.3f  latency avg %.1fms p95 %.1fms",
					s.Method, s.AvgCoverage, s.AvgPrecision, s.AvgMRR, s.AvgLatencyMS, s.P95LatencyMS)
			}
			if r, ok := eval.CoverageQualityCorrelation(results, items); ok {
				out.KeyValue("coverage~quality", fmt.Sprintf("%.3f", r))
			}

			if outputPath != "" {
				if err := eval.SaveResults(outputPath, results); err != nil {
					return err
				}
				out.Successf("Wrote %s", outputPath)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 5, "Results per method per query")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write detailed per-query results as JSON")
	return cmd
}
