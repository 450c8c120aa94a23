package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jaganraajan/rag-document-parser/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus and vocabulary statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.stats()
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			out := output.New(cmd.OutOrStdout())
			out.Header("ragdoc")
			out.KeyValue("data dir", a.cfg.Paths.DataDir)
			out.KeyValue("chunks", st.Chunks)
			out.KeyValue("vocabulary", st.VocabSize)
			out.KeyValue("documents (N)", st.DocumentCount)
			out.KeyValue("dense backend", st.DenseBackend)
			out.KeyValue("sparse backend", st.SparseBackend)
			out.KeyValue("cross-encoder", st.CrossEncoder)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
