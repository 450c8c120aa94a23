package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jaganraajan/rag-document-parser/internal/ingest"
	"github.com/jaganraajan/rag-document-parser/internal/output"
)

func newClearCmd() *cobra.Command {
	var resetVocab, remote bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the local corpus and indexes",
		Long: `Delete the local BM25 corpus and the local sparse and dense indexes.

The vocabulary is kept unless --reset-vocab is given, so token ids stay
stable across a re-ingest. Hosted Pinecone namespaces are only emptied with
--remote.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			lock := ingest.NewFileLock(a.cfg.Paths.LockPath())
			if err := lock.MustTryLock(); err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			if err := a.clear(cmd.Context(), resetVocab, remote); err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			out.Success("Cleared corpus and local indexes")
			if resetVocab {
				out.Success("Reset vocabulary and document frequencies")
			}
			if remote {
				out.Success("Emptied remote namespaces")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&resetVocab, "reset-vocab", false, "Also delete the vocabulary and document frequencies")
	cmd.Flags().BoolVar(&remote, "remote", false, "Also delete every vector in the Pinecone namespaces")
	return cmd
}
